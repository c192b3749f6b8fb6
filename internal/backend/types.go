package backend

// --- CBIR backend API types ---

// ImageCollection is one label and the image URLs stored under it, as
// returned by GET /AllImages/.
type ImageCollection struct {
	Label  string   `json:"label"`
	Images []string `json:"images"`
}

type LabelSummary struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type labelsSummaryResponse struct {
	TotalLabels int            `json:"total_labels"`
	Summary     []LabelSummary `json:"summary"`
}

type UploadResult struct {
	Label         string
	UploadedCount int
	ImagePaths    []string
}

type uploadResponse struct {
	Label         string   `json:"label"`
	UploadedCount *int     `json:"uploaded_count"` // nil when the backend omitted it
	ImagePaths    []string `json:"images_path"`
}

type ScoredImage struct {
	Path     string  `json:"path"`
	Distance float64 `json:"distance"`
}

// SearchResult groups ranked hits under one label. Order is whatever the
// backend returned.
type SearchResult struct {
	Label  string        `json:"label"`
	Images []ScoredImage `json:"images"`
}

type predictResponse struct {
	Results []SearchResult `json:"results"`
}

// File is an image held in memory between selection in the browser and
// submission to the backend.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f File) Size() int64 {
	return int64(len(f.Data))
}

// ProgressFunc reports upload progress: (sent, total) in bytes. total is 0
// when the size of the request body is not known.
type ProgressFunc func(sent, total int64)
