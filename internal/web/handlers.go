package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/drummonds/travellens-web/internal/backend"
	"github.com/drummonds/travellens-web/internal/gallery"
	"github.com/drummonds/travellens-web/internal/preview"
	"github.com/drummonds/travellens-web/internal/search"
	"github.com/drummonds/travellens-web/internal/upload"
)

// --- Landing ---

type homePage struct {
	basePage
	Loaded  bool
	Current string
	Index   int
	Total   int
}

func (s *Server) home(c *gin.Context) {
	car := sessionOf(c).Carousel
	if !car.Loaded() {
		car.Load(c.Request.Context())
	} else if c.Query("advance") == "1" {
		car.Next()
	}
	url, idx, total, _ := car.Current()
	c.HTML(http.StatusOK, "home.html", homePage{
		basePage: s.base(c, "home"),
		Loaded:   car.Loaded(),
		Current:  url,
		Index:    idx,
		Total:    total,
	})
}

func (s *Server) carouselStep(forward bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		car := sessionOf(c).Carousel
		if forward {
			car.Next()
		} else {
			car.Prev()
		}
		c.Redirect(http.StatusSeeOther, "/")
	}
}

// --- Search ---

type predictPage struct {
	basePage
	State search.State
	Alert string
}

func (s *Server) predictPage(c *gin.Context) {
	w := sessionOf(c).Search
	alert := w.TakeAlert()
	c.HTML(http.StatusOK, "predict.html", predictPage{
		basePage: s.base(c, "predict"),
		State:    w.State(),
		Alert:    alert,
	})
}

func (s *Server) predictFile(c *gin.Context) {
	files, err := formFiles(c, "file")
	if err != nil || len(files) == 0 {
		redirect(c, "/predict", "No file received")
		return
	}
	sessionOf(c).Search.SelectFile(files[0])
	redirect(c, "/predict", "")
}

// predictSubmit accepts an optional file alongside top_k so a single form
// post can select and search. The search runs under the session context and
// the page polls /predict/status until it finishes.
func (s *Server) predictSubmit(c *gin.Context) {
	sess := sessionOf(c)
	w := sess.Search
	if files, err := formFiles(c, "file"); err == nil && len(files) > 0 {
		w.SelectFile(files[0])
	}
	if raw, ok := c.GetPostForm("top_k"); ok {
		w.SetTopK(raw)
	}
	if _, err := w.Start(sess.Context()); errors.Is(err, search.ErrBusy) {
		redirect(c, "/predict", "A search is already running")
		return
	}
	// other failures surface as the workflow alert
	redirect(c, "/predict", "")
}

type searchStatusJSON struct {
	Loading bool `json:"loading"`
}

func (s *Server) predictStatus(c *gin.Context) {
	c.JSON(http.StatusOK, searchStatusJSON{Loading: sessionOf(c).Search.State().Loading})
}

func (s *Server) predictPreview(c *gin.Context) {
	h := preview.Handle(c.Param("id"))
	if h == "" || sessionOf(c).Search.State().Preview != h {
		c.Status(http.StatusNotFound)
		return
	}
	path, err := s.opts.Previews.Path(h)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.File(path)
}

// --- Gallery ---

type galleryPage struct {
	basePage
	Sections    []gallery.Section
	CapInput    int
	ActiveCap   int
	HasSections bool
}

func (s *Server) galleryPage(c *gin.Context) {
	v := sessionOf(c).Gallery
	if !v.Loaded() {
		v.Fetch(c.Request.Context())
	}
	sections := v.Sections()
	input, active := v.Cap()
	c.HTML(http.StatusOK, "gallery.html", galleryPage{
		basePage:    s.base(c, "gallery"),
		Sections:    sections,
		CapInput:    input,
		ActiveCap:   active,
		HasSections: len(sections) > 0,
	})
}

func (s *Server) galleryToggle(c *gin.Context) {
	sessionOf(c).Gallery.Toggle(c.PostForm("label"))
	c.Redirect(http.StatusSeeOther, "/AllImage")
}

func (s *Server) galleryCap(c *gin.Context) {
	v := sessionOf(c).Gallery
	v.SetCapInput(c.PostForm("cap"))
	v.ConfirmCap()
	c.Redirect(http.StatusSeeOther, "/AllImage")
}

func (s *Server) galleryRefresh(c *gin.Context) {
	sessionOf(c).Gallery.Fetch(c.Request.Context())
	c.Redirect(http.StatusSeeOther, "/AllImage")
}

// --- Upload ---

type uploadPage struct {
	basePage
	State    upload.State
	MaxFiles int
}

func (s *Server) uploadPage(c *gin.Context) {
	w := sessionOf(c).Upload
	if !w.State().Uploading {
		w.Mount(c.Request.Context())
	}
	c.HTML(http.StatusOK, "upload.html", uploadPage{
		basePage: s.base(c, "upload"),
		State:    w.State(),
		MaxFiles: upload.MaxFiles,
	})
}

type progressJSON struct {
	Uploading bool   `json:"uploading"`
	Progress  int    `json:"progress"`
	Known     bool   `json:"known"`
	Message   string `json:"message"`
}

func (s *Server) uploadProgress(c *gin.Context) {
	st := sessionOf(c).Upload.State()
	c.JSON(http.StatusOK, progressJSON{
		Uploading: st.Uploading,
		Progress:  st.Progress,
		Known:     st.ProgressKnown,
		Message:   st.Message,
	})
}

// applyLabelFields copies whichever label controls were posted into the
// workflow.
func applyLabelFields(c *gin.Context, w *upload.Workflow) {
	if m, ok := c.GetPostForm("mode"); ok {
		w.SetMode(upload.ParseMode(m))
	}
	if v, ok := c.GetPostForm("new_label"); ok {
		w.SetNewLabel(v)
	}
	if v, ok := c.GetPostForm("existing_label"); ok {
		w.SelectExistingLabel(v)
	}
}

func (s *Server) uploadMode(c *gin.Context) {
	applyLabelFields(c, sessionOf(c).Upload)
	c.Redirect(http.StatusSeeOther, "/upload_data")
}

func (s *Server) uploadAddFiles(c *gin.Context) {
	files, err := formFiles(c, "files")
	if err != nil {
		redirect(c, "/upload_data", "No files received")
		return
	}
	w := sessionOf(c).Upload
	applyLabelFields(c, w)
	w.AddFiles(files...)
	c.Redirect(http.StatusSeeOther, "/upload_data")
}

func (s *Server) uploadRemoveFile(c *gin.Context) {
	i, err := strconv.Atoi(c.PostForm("index"))
	if err == nil {
		sessionOf(c).Upload.RemoveFile(i)
	}
	c.Redirect(http.StatusSeeOther, "/upload_data")
}

// uploadSubmit also takes files still sitting in the picker, then starts the
// upload in the background so the redirected page can poll its progress.
func (s *Server) uploadSubmit(c *gin.Context) {
	sess := sessionOf(c)
	w := sess.Upload
	applyLabelFields(c, w)
	if files, err := formFiles(c, "files"); err == nil {
		w.AddFiles(files...)
	}
	_, err := w.Start(sess.Context())
	if errors.Is(err, upload.ErrBusy) {
		redirect(c, "/upload_data", "An upload is already in progress")
		return
	}
	if err != nil {
		log.WithField("session", sess.ID).Debugf("upload: submit: %v", err)
	}
	c.Redirect(http.StatusSeeOther, "/upload_data")
}

// --- Helpers ---

// formFiles reads every part posted under field into memory.
func formFiles(c *gin.Context, field string) ([]backend.File, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("reading multipart form: %w", err)
	}
	headers := form.File[field]
	files := make([]backend.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		files = append(files, backend.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
