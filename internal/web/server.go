// Package web serves the TravelLens pages and turns form posts into
// workflow operations on the caller's session.
package web

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/drummonds/travellens-web/internal/carousel"
	"github.com/drummonds/travellens-web/internal/preview"
	"github.com/drummonds/travellens-web/internal/session"
	"github.com/drummonds/travellens-web/internal/theme"
)

//go:embed templates/*.html
var templateFS embed.FS

// PreviewFiles resolves a preview handle to the file on disk.
type PreviewFiles interface {
	Path(h preview.Handle) (string, error)
}

type Options struct {
	Sessions   *session.Manager
	Theme      *theme.Preference
	Previews   PreviewFiles
	BackendURL string
	IsDemo     bool
	SessionTTL time.Duration
}

type Server struct {
	opts   Options
	engine *gin.Engine
}

func New(opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}
	s := &Server{opts: opts}

	funcMap := template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"kb":  func(n int64) int64 { return (n + 512) / 1024 },
		"refreshSeconds": func() int {
			return int(carousel.Interval / time.Second)
		},
	}
	tmpl := template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"))

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.SetHTMLTemplate(tmpl)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/theme/toggle", s.toggleTheme)
	r.GET("/description", s.withSession, s.description)

	r.GET("/", s.withSession, s.home)
	r.POST("/carousel/next", s.withSession, s.carouselStep(true))
	r.POST("/carousel/prev", s.withSession, s.carouselStep(false))

	r.GET("/predict", s.withSession, s.predictPage)
	r.POST("/predict", s.withSession, s.predictSubmit)
	r.POST("/predict/file", s.withSession, s.predictFile)
	r.GET("/predict/status", s.withSession, s.predictStatus)
	r.GET("/predict/preview/:id", s.withSession, s.predictPreview)

	r.GET("/AllImage", s.withSession, s.galleryPage)
	r.POST("/AllImage/toggle", s.withSession, s.galleryToggle)
	r.POST("/AllImage/cap", s.withSession, s.galleryCap)
	r.POST("/AllImage/refresh", s.withSession, s.galleryRefresh)

	r.GET("/upload_data", s.withSession, s.uploadPage)
	r.GET("/upload_data/progress", s.withSession, s.uploadProgress)
	r.POST("/upload_data/mode", s.withSession, s.uploadMode)
	r.POST("/upload_data/files", s.withSession, s.uploadAddFiles)
	r.POST("/upload_data/files/remove", s.withSession, s.uploadRemoveFile)
	r.POST("/upload_data/submit", s.withSession, s.uploadSubmit)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// --- Middleware ---

const sessionKey = "session"

// withSession attaches the caller's session, issuing a cookie for new ones.
func (s *Server) withSession(c *gin.Context) {
	id, _ := c.Cookie(session.CookieName)
	sess, created := s.opts.Sessions.Get(id)
	if created {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(session.CookieName, sess.ID, int(s.opts.SessionTTL/time.Second), "/", "", false, true)
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func sessionOf(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond).String(),
		}).Debug("request")
	}
}

// --- Page data ---

type basePage struct {
	Page       string
	Theme      theme.Theme
	Flash      string
	IsDemo     bool
	BackendURL string
}

func (s *Server) base(c *gin.Context, page string) basePage {
	return basePage{
		Page:       page,
		Theme:      s.opts.Theme.Theme(),
		Flash:      c.Query("flash"),
		IsDemo:     s.opts.IsDemo,
		BackendURL: s.opts.BackendURL,
	}
}

func redirect(c *gin.Context, path, flash string) {
	if flash != "" {
		path += "?flash=" + url.QueryEscape(flash)
	}
	c.Redirect(http.StatusSeeOther, path)
}

// --- Theme / static ---

func (s *Server) toggleTheme(c *gin.Context) {
	if _, err := s.opts.Theme.Toggle(); err != nil {
		log.Printf("theme: toggle not persisted: %v", err)
	}
	back := "/"
	if ref, err := url.Parse(c.Request.Referer()); err == nil && ref.Path != "" && ref.Host == c.Request.Host {
		back = ref.Path
	}
	c.Redirect(http.StatusSeeOther, back)
}

func (s *Server) description(c *gin.Context) {
	c.HTML(http.StatusOK, "description.html", s.base(c, "description"))
}
