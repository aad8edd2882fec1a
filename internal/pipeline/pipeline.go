// Package pipeline converts validated attachments into persisted analysis
// results and outbound notifications. Each attachment of a message is
// processed independently: a failure in one never cancels or blocks its
// siblings. Total in-flight work across all messages is bounded by a
// process-wide semaphore so back-pressure from the analysis service cannot
// exhaust resources.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/docsift/mailscan/internal/analysis"
	"github.com/docsift/mailscan/internal/models"
	"github.com/docsift/mailscan/internal/notify"
	"github.com/docsift/mailscan/internal/report"
	"github.com/docsift/mailscan/internal/storage"
)

// Ledger is the subset of the request ledger the pipeline needs.
type Ledger interface {
	Create(ctx context.Context, draft models.RequestDraft) (*models.AnalysisRequest, error)
	MarkCompleted(ctx context.Context, id int64, outputPath *string) error
}

// Notifier queues one outbound notification job.
type Notifier interface {
	Publish(ctx context.Context, job notify.Job) error
}

// Config wires a Pipeline.
type Config struct {
	Ledger   Ledger
	Store    storage.Store
	Analysis analysis.Service
	Renderer report.Renderer
	Notifier Notifier

	TempDir        string
	AnalyzeFolder  string
	EvaluateFolder string

	// MaxInflight bounds concurrently processing attachments across all
	// messages. Zero means 16.
	MaxInflight int64
}

// Pipeline processes validated attachments in the background.
type Pipeline struct {
	ledger   Ledger
	store    storage.Store
	analysis analysis.Service
	renderer report.Renderer
	notifier Notifier

	tempDir string
	folders map[models.Kind]string

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New builds a pipeline from the config.
func New(cfg Config) *Pipeline {
	inflight := cfg.MaxInflight
	if inflight <= 0 {
		inflight = 16
	}
	return &Pipeline{
		ledger:   cfg.Ledger,
		store:    cfg.Store,
		analysis: cfg.Analysis,
		renderer: cfg.Renderer,
		notifier: cfg.Notifier,
		tempDir:  cfg.TempDir,
		folders: map[models.Kind]string{
			models.KindAnalyze:  cfg.AnalyzeFolder,
			models.KindEvaluate: cfg.EvaluateFolder,
		},
		sem: semaphore.NewWeighted(inflight),
	}
}

// Dispatch starts background processing for each attachment and returns
// immediately. Message handling is fire-and-forget relative to the mailbox
// watch loop.
func (p *Pipeline) Dispatch(ctx context.Context, email *models.Email, kind models.Kind, user *models.User, attachments []models.Attachment) {
	for _, att := range attachments {
		att := att
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()

			if err := p.sem.Acquire(ctx, 1); err != nil {
				slog.Error("abandoning attachment, shutdown in progress", "filename", att.Filename)
				return
			}
			defer p.sem.Release(1)

			p.process(ctx, kind, user, att)
		}()
	}

	slog.Info("dispatched attachments for processing",
		"kind", kind,
		"user_id", user.ID,
		"count", len(attachments),
		"uid", email.UID,
	)
}

// Wait blocks until all dispatched attachments have settled.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// process runs one attachment through upload, analysis, report rendering
// and ledger completion. The request row reaches completed on every path
// out of this function once it exists; a mid-pipeline failure leaves the
// output path empty and queues no notification.
func (p *Pipeline) process(ctx context.Context, kind models.Kind, user *models.User, att models.Attachment) {
	log := slog.With("kind", kind, "user_id", user.ID, "filename", att.Filename)

	// Advisory staging copy for the multipart upload. Its failure must not
	// abort the attachment.
	tmpPath := p.stageTempFile(att)
	if tmpPath != "" {
		defer func() {
			if err := os.Remove(tmpPath); err != nil {
				log.Warn("failed to remove temp file", "path", tmpPath, "error", err)
			}
		}()
	}

	inputPath, err := p.store.Upload(ctx, bytes.NewReader(att.Data), p.folders[kind], att.Filename)
	if err != nil {
		log.Error("failed to upload document", "error", err)
		return
	}

	req, err := p.ledger.Create(ctx, models.RequestDraft{
		UserID:        user.ID,
		InputFilename: att.Filename,
		InputPath:     inputPath,
		Kind:          kind,
	})
	if err != nil {
		log.Error("failed to create request record", "error", err)
		return
	}
	log = log.With("request_id", req.ID, "correlation_id", req.CorrelationID)

	document, closeDoc := p.openStaged(tmpPath, att)
	result, err := p.analysis.Submit(ctx, kind, user, att.Filename, document)
	closeDoc()
	if err != nil {
		log.Error("analysis service call failed", "error", err)
		p.complete(ctx, req.ID, nil, log)
		return
	}

	reportPDF, err := p.renderer.Render(kind, user, result)
	if err != nil {
		log.Error("failed to render report", "error", err)
		p.complete(ctx, req.ID, nil, log)
		return
	}

	reportName := fmt.Sprintf("%s_report.pdf", req.CorrelationID)
	outputPath, err := p.store.Upload(ctx, bytes.NewReader(reportPDF), p.folders[kind], reportName)
	if err != nil {
		log.Error("failed to upload report", "error", err)
		p.complete(ctx, req.ID, nil, log)
		return
	}

	p.complete(ctx, req.ID, &outputPath, log)

	job := notify.Job{
		Type: notify.TypeAnalysisComplete,
		Data: map[string]string{
			"user_name":   user.Name,
			"user_email":  user.Email,
			"kind":        string(kind),
			"filename":    att.Filename,
			"output_path": outputPath,
		},
	}
	if kind == models.KindEvaluate {
		job.Type = notify.TypeEvaluationComplete
	}
	if err := p.notifier.Publish(ctx, job); err != nil {
		log.Error("failed to queue completion notification", "error", err)
	}

	log.Info("request completed", "output_path", outputPath)
}

// complete marks the request row completed, with or without an output path.
func (p *Pipeline) complete(ctx context.Context, id int64, outputPath *string, log *slog.Logger) {
	if err := p.ledger.MarkCompleted(ctx, id, outputPath); err != nil {
		log.Error("failed to complete request record", "error", err)
	}
}

// stageTempFile writes the attachment to a uniquely named file under the
// temp directory. Returns the empty string on failure.
func (p *Pipeline) stageTempFile(att models.Attachment) string {
	if p.tempDir == "" {
		return ""
	}
	if err := os.MkdirAll(p.tempDir, 0o750); err != nil {
		slog.Warn("failed to create temp directory", "dir", p.tempDir, "error", err)
		return ""
	}

	path := filepath.Join(p.tempDir, uuid.New().String()+"_"+filepath.Base(att.Filename))
	if err := os.WriteFile(path, att.Data, 0o640); err != nil {
		slog.Warn("failed to stage temp file", "path", path, "error", err)
		return ""
	}
	return path
}

// openStaged prefers the staged temp file as the upload stream, falling
// back to the in-memory bytes when staging failed.
func (p *Pipeline) openStaged(tmpPath string, att models.Attachment) (io.Reader, func()) {
	if tmpPath != "" {
		if f, err := os.Open(tmpPath); err == nil {
			return f, func() { _ = f.Close() }
		}
	}
	return bytes.NewReader(att.Data), func() {}
}
