package panel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"DocChat/internal/backend"
)

const (
	msgSelectFile = "Select a file"
	uploadFailed  = "Upload failed"
)

// AcceptedExtensions is the filter of the file selection control
var AcceptedExtensions = []string{".pdf", ".txt"}

// Accepted reports whether path passes the selection filter
func Accepted(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range AcceptedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Uploader is the part of the backend client the upload panel uses
type Uploader interface {
	UploadDocument(ctx context.Context, filename string, file io.Reader, subject string) (*backend.UploadResponse, error)
}

// Result is the message shown under the upload form
type Result struct {
	OK   bool
	Text string
}

// UploadState is a snapshot of the upload panel
type UploadState struct {
	File      string
	Subject   string
	Uploading bool
	Result    *Result
}

// UploadPanel is the upload form state machine: idle and uploading.
type UploadPanel struct {
	api        Uploader
	logger     *slog.Logger
	open       func(path string) (io.ReadCloser, error)
	onUploaded func(*backend.UploadResponse)
	onChange   func(UploadState)

	mu        sync.Mutex
	file      string
	subject   string
	uploading bool
	result    *Result
}

// UploadOption configures an UploadPanel
type UploadOption func(*UploadPanel)

// WithUploadLogger sets the logger
func WithUploadLogger(l *slog.Logger) UploadOption {
	return func(p *UploadPanel) { p.logger = l }
}

// WithOpener overrides how a selected path is opened
func WithOpener(open func(path string) (io.ReadCloser, error)) UploadOption {
	return func(p *UploadPanel) { p.open = open }
}

// OnUploaded registers the callback invoked with every successful result
func OnUploaded(fn func(*backend.UploadResponse)) UploadOption {
	return func(p *UploadPanel) { p.onUploaded = fn }
}

// OnUploadChange registers a listener called after every state mutation
func OnUploadChange(fn func(UploadState)) UploadOption {
	return func(p *UploadPanel) { p.onChange = fn }
}

// NewUploadPanel creates an idle upload panel
func NewUploadPanel(api Uploader, opts ...UploadOption) *UploadPanel {
	p := &UploadPanel{
		api: api,
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Select picks the file to upload; an empty path clears the selection.
// Paths outside the accepted types are refused and leave the selection as is.
func (p *UploadPanel) Select(path string) error {
	if path != "" && !Accepted(path) {
		return fmt.Errorf("unsupported file type %q (accepted: %s)",
			filepath.Ext(path), strings.Join(AcceptedExtensions, ", "))
	}

	p.mu.Lock()
	p.file = path
	p.result = nil
	p.mu.Unlock()
	p.notify()
	return nil
}

// SetSubject sets the optional subject label
func (p *UploadPanel) SetSubject(subject string) {
	p.mu.Lock()
	p.subject = subject
	p.mu.Unlock()
	p.notify()
}

// Submit uploads the selected file. The returned bool is false when the
// call was ignored because an upload is already in flight.
func (p *UploadPanel) Submit(ctx context.Context) (Result, bool) {
	p.mu.Lock()
	if p.uploading {
		p.mu.Unlock()
		return Result{}, false
	}
	if p.file == "" {
		res := Result{OK: false, Text: msgSelectFile}
		p.result = &res
		p.mu.Unlock()
		p.notify()
		return res, true
	}
	p.uploading = true
	p.result = nil
	path, subject := p.file, p.subject
	p.mu.Unlock()
	p.notify()

	resp, err := p.upload(ctx, path, subject)

	var res Result
	p.mu.Lock()
	if err != nil {
		p.logger.Error("upload failed", "file", path, "error", err)
		res = Result{OK: false, Text: reason(err, uploadFailed)}
	} else {
		p.logger.Info("document uploaded",
			"doc_id", resp.DocID, "filename", resp.Filename, "chunks_stored", resp.ChunksStored)
		res = Result{OK: true, Text: resp.Message}
		p.file = ""
		p.subject = ""
	}
	p.result = &res
	p.uploading = false
	p.mu.Unlock()

	if err == nil && p.onUploaded != nil {
		p.onUploaded(resp)
	}
	p.notify()
	return res, true
}

func (p *UploadPanel) upload(ctx context.Context, path, subject string) (*backend.UploadResponse, error) {
	f, err := p.open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	return p.api.UploadDocument(ctx, path, f, subject)
}

// State returns a snapshot of the panel
func (p *UploadPanel) State() UploadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := UploadState{
		File:      p.file,
		Subject:   p.subject,
		Uploading: p.uploading,
	}
	if p.result != nil {
		r := *p.result
		st.Result = &r
	}
	return st
}

func (p *UploadPanel) notify() {
	if p.onChange == nil {
		return
	}
	p.onChange(p.State())
}
