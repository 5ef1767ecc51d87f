package model

// StagedFile represents one file accepted into the upload queue
type StagedFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// AnalysisResult is the outcome of submitting one staged file for analysis
type AnalysisResult struct {
	Summary      string `json:"summary"`
	DownloadLink string `json:"download_link"`
}

// DocumentState constants
const (
	DocEmpty      = "empty"
	DocStaged     = "staged"
	DocSubmitting = "submitting"
	DocAnalyzed   = "analyzed"
	DocFailed     = "failed"
)
