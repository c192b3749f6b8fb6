// Package demo is an in-memory stand-in for the CBIR backend. It speaks the
// same HTTP contract so the frontend can run without the real service;
// similarity is plain average-colour distance.
package demo

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
)

type storedImage struct {
	label       string
	name        string
	contentType string
	data        []byte
	avg         [3]float64
}

type Backend struct {
	mu     sync.RWMutex
	labels []string // first-upload order
	images map[string][]*storedImage
}

func New() *Backend {
	return &Backend{images: make(map[string][]*storedImage)}
}

// NewSeeded returns a backend holding a few generated tiles per label.
func NewSeeded() *Backend {
	b := New()
	for _, s := range seedLabels {
		for i, c := range s.colors {
			data := solidPNG(c)
			if err := b.Add(s.label, fmt.Sprintf("%s-%d.png", s.label, i+1), "image/png", data); err != nil {
				panic(err) // generated PNGs always decode
			}
		}
	}
	return b
}

var seedLabels = []struct {
	label  string
	colors []color.NRGBA
}{
	{"beach", []color.NRGBA{{240, 220, 160, 255}, {90, 170, 230, 255}, {220, 200, 150, 255}}},
	{"forest", []color.NRGBA{{30, 110, 40, 255}, {60, 140, 60, 255}, {20, 80, 30, 255}}},
	{"temple", []color.NRGBA{{190, 50, 40, 255}, {210, 170, 60, 255}, {160, 40, 30, 255}}},
}

func solidPNG(c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		panic(err) // in-memory encode of a fixed-size tile
	}
	return buf.Bytes()
}

// averageColour decodes data and returns its mean RGB in [0,1].
func averageColour(data []byte) ([3]float64, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return [3]float64{}, err
	}
	px := imaging.Resize(img, 1, 1, imaging.Box).NRGBAAt(0, 0)
	return [3]float64{float64(px.R) / 255, float64(px.G) / 255, float64(px.B) / 255}, nil
}

func decodeImage(label, name, contentType string, data []byte) (*storedImage, error) {
	avg, err := averageColour(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return &storedImage{label: label, name: name, contentType: contentType, data: data, avg: avg}, nil
}

// Add stores one image under label.
func (b *Backend) Add(label, name, contentType string, data []byte) error {
	im, err := decodeImage(label, name, contentType, data)
	if err != nil {
		return err
	}
	b.store(im)
	return nil
}

func (b *Backend) store(ims ...*storedImage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, im := range ims {
		if _, ok := b.images[im.label]; !ok {
			b.labels = append(b.labels, im.label)
		}
		b.images[im.label] = append(b.images[im.label], im)
	}
}

// --- HTTP ---

func (b *Backend) Handler() http.Handler {
	r := gin.New()
	r.UseRawPath = true // labels and names may carry escaped '/'
	r.Use(gin.Recovery())
	r.GET("/AllImages/", b.allImages)
	r.GET("/LabelsSummary/", b.labelsSummary)
	r.POST("/upload/", b.upload)
	r.POST("/predict/", b.predict)
	r.GET("/images/:label/:name", b.image)
	return r
}

func imageURL(c *gin.Context, im *storedImage) string {
	return fmt.Sprintf("http://%s/images/%s/%s", c.Request.Host, url.PathEscape(im.label), url.PathEscape(im.name))
}

func (b *Backend) allImages(c *gin.Context) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]gin.H, 0, len(b.labels))
	for _, l := range b.labels {
		urls := make([]string, 0, len(b.images[l]))
		for _, im := range b.images[l] {
			urls = append(urls, imageURL(c, im))
		}
		out = append(out, gin.H{"label": l, "images": urls})
	}
	c.JSON(http.StatusOK, out)
}

func (b *Backend) labelsSummary(c *gin.Context) {
	b.mu.RLock()
	labels := append([]string(nil), b.labels...)
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l] = len(b.images[l])
	}
	b.mu.RUnlock()

	sort.Strings(labels)
	summary := make([]gin.H, 0, len(labels))
	for _, l := range labels {
		summary = append(summary, gin.H{"label": l, "count": counts[l]})
	}
	c.JSON(http.StatusOK, gin.H{"total_labels": len(summary), "summary": summary})
}

func (b *Backend) upload(c *gin.Context) {
	label := strings.TrimSpace(c.PostForm("label"))
	form, err := c.MultipartForm()
	if label == "" || err != nil || len(form.File["files"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "label and files are required"})
		return
	}

	// the whole batch decodes before any of it is stored
	var batch []*storedImage
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Upload processing failed for " + fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		var im *storedImage
		if err == nil {
			im, err = decodeImage(label, fh.Filename, fh.Header.Get("Content-Type"), data)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Upload processing failed for %s: %v", fh.Filename, err)})
			return
		}
		batch = append(batch, im)
	}
	b.store(batch...)

	urls := make([]string, 0, len(batch))
	for _, im := range batch {
		urls = append(urls, imageURL(c, im))
	}
	c.JSON(http.StatusOK, gin.H{"label": label, "uploaded_count": len(urls), "images_path": urls})
}

type hit struct {
	im   *storedImage
	dist float64
}

func (b *Backend) predict(c *gin.Context) {
	topK, err := strconv.Atoi(c.PostForm("top_k"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "top_k must be an integer"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	query, err := averageColour(data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Prediction failed (Embedding or DB search): " + err.Error()})
		return
	}

	b.mu.RLock()
	var hits []hit
	for _, l := range b.labels {
		for _, im := range b.images[l] {
			hits = append(hits, hit{im: im, dist: distance(query, im.avg)})
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if topK >= 0 && topK < len(hits) {
		hits = hits[:topK]
	}

	// group by label in order of best hit
	var order []string
	grouped := make(map[string][]gin.H)
	for _, h := range hits {
		if _, ok := grouped[h.im.label]; !ok {
			order = append(order, h.im.label)
		}
		grouped[h.im.label] = append(grouped[h.im.label], gin.H{"path": imageURL(c, h.im), "distance": h.dist})
	}
	results := make([]gin.H, 0, len(order))
	for _, l := range order {
		results = append(results, gin.H{"label": l, "images": grouped[l]})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func distance(a, b [3]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (b *Backend) image(c *gin.Context) {
	label, name := c.Param("label"), c.Param("name")
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, im := range b.images[label] {
		if im.name == name {
			ct := im.contentType
			if ct == "" {
				ct = http.DetectContentType(im.data)
			}
			c.Header("Cache-Control", "public, max-age=3600")
			c.Data(http.StatusOK, ct, im.data)
			return
		}
	}
	c.Status(http.StatusNotFound)
}
