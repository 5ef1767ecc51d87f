package document

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/legalai/legalai/client/model"
	"github.com/legalai/legalai/client/pkg/logger"
	"github.com/legalai/legalai/client/transport"
)

var (
	// ErrSubmitInFlight is returned when Submit is called while a
	// submission is already running
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	// ErrNothingStaged is returned when Submit is called with no staged files
	ErrNothingStaged = errors.New("no file staged for analysis")
	// ErrNoArtifact is returned when FetchArtifact is called without an
	// analysis result to download
	ErrNoArtifact = errors.New("no analysis artifact available")
)

// acceptedExtensions are the file types the backend can analyze
var acceptedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// File is a user-selected file offered for staging. Open is called at
// submission time; staging itself never reads the content.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

type stagedItem struct {
	meta model.StagedFile
	open func() (io.ReadCloser, error)
}

// Tracker walks a single document through stage, submit, and download. The
// backend analyzes one document per submission, so the tracker holds a
// single current result; a new submission supersedes the old result rather
// than accumulating.
type Tracker struct {
	mu          sync.Mutex
	client      *transport.Client
	staged      []stagedItem
	result      *model.AnalysisResult
	failReason  string
	downloadErr string
	submitting  bool
}

func NewTracker(client *transport.Client) *Tracker {
	return &Tracker{client: client}
}

// Stage filters the offered files against the accepted extensions and
// queues the survivors in order. Rejected files are silently dropped; they
// never fail the batch. Staging after a failure returns the tracker to the
// staged state.
func (t *Tracker) Stage(files ...File) []model.StagedFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	var accepted []model.StagedFile
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !acceptedExtensions[ext] {
			logger.Debug(context.Background(), "file type not accepted", "filename", f.Name)
			continue
		}
		item := stagedItem{
			meta: model.StagedFile{
				ID:       uuid.New().String(),
				Filename: f.Name,
				Size:     f.Size,
			},
			open: f.Open,
		}
		t.staged = append(t.staged, item)
		accepted = append(accepted, item.meta)
	}

	if len(accepted) > 0 {
		t.failReason = ""
	}
	return accepted
}

// StagePaths stages files from disk, for CLI use
func (t *Tracker) StagePaths(paths ...string) ([]model.StagedFile, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		p := p
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			Name: filepath.Base(p),
			Size: info.Size(),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	return t.Stage(files...), nil
}

// Unstage removes a staged file by id; unknown ids are ignored
func (t *Tracker) Unstage(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, item := range t.staged {
		if item.meta.ID == id {
			t.staged = append(t.staged[:i], t.staged[i+1:]...)
			return
		}
	}
}

// Staged returns a snapshot of the staged files in order
func (t *Tracker) Staged() []model.StagedFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.StagedFile, len(t.staged))
	for i, item := range t.staged {
		out[i] = item.meta
	}
	return out
}

// State derives the tracker state from what it currently holds
func (t *Tracker) State() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() string {
	switch {
	case t.submitting:
		return model.DocSubmitting
	case t.failReason != "":
		return model.DocFailed
	case t.result != nil:
		return model.DocAnalyzed
	case len(t.staged) > 0:
		return model.DocStaged
	default:
		return model.DocEmpty
	}
}

// Result returns the current analysis result, or nil
func (t *Tracker) Result() *model.AnalysisResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// FailureReason returns the message of the last failed submission, or ""
func (t *Tracker) FailureReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failReason
}

// DownloadError returns the transient error of the last failed download,
// or ""
func (t *Tracker) DownloadError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloadErr
}

// Submit uploads exactly the first staged file for analysis. The backend
// processes one document per submission; remaining staged files are left
// untouched. On failure the staged files are kept so the user can resubmit.
// A second Submit while one is in flight is rejected.
func (t *Tracker) Submit(ctx context.Context) (*model.AnalysisResult, error) {
	t.mu.Lock()
	if t.submitting {
		t.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if len(t.staged) == 0 {
		t.mu.Unlock()
		return nil, ErrNothingStaged
	}
	item := t.staged[0]
	t.submitting = true
	t.mu.Unlock()

	ctx = context.WithValue(ctx, logger.OperationKey, "upload")

	result, err := t.upload(ctx, item)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.submitting = false

	if err != nil {
		t.failReason = failureMessage(err)
		logger.Warn(ctx, "document submission failed", "filename", item.meta.Filename, "error", err)
		return nil, err
	}

	// supersede any previous result
	t.result = result
	t.failReason = ""
	t.downloadErr = ""
	logger.Info(ctx, "document analyzed", "filename", item.meta.Filename)
	return result, nil
}

func (t *Tracker) upload(ctx context.Context, item stagedItem) (*model.AnalysisResult, error) {
	content, err := item.open()
	if err != nil {
		return nil, &transport.Error{
			Kind:    transport.KindValidation,
			Message: "could not read " + item.meta.Filename,
			Err:     err,
		}
	}
	defer content.Close()

	var result model.AnalysisResult
	if err := t.client.UploadFile(ctx, "/api/user/upload/", item.meta.Filename, content, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchArtifact downloads the analysis artifact named by the final path
// segment of the result's download link. A failed download leaves the
// analysis result intact.
func (t *Tracker) FetchArtifact(ctx context.Context) (string, []byte, error) {
	t.mu.Lock()
	if t.result == nil || t.result.DownloadLink == "" {
		t.mu.Unlock()
		return "", nil, ErrNoArtifact
	}
	filename := path.Base(t.result.DownloadLink)
	t.mu.Unlock()

	ctx = context.WithValue(ctx, logger.OperationKey, "download")

	data, err := t.client.Download(ctx, "/api/user/download/"+filename)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.downloadErr = failureMessage(err)
		logger.Warn(ctx, "artifact download failed", "filename", filename, "error", err)
		return "", nil, err
	}

	t.downloadErr = ""
	return filename, data, nil
}

// Reset discards staged files, the current result, and any errors. Called
// when the session is torn down.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staged = nil
	t.result = nil
	t.failReason = ""
	t.downloadErr = ""
}

func failureMessage(err error) string {
	var te *transport.Error
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return err.Error()
}
