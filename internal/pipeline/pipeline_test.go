package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/docsift/mailscan/internal/analysis"
	"github.com/docsift/mailscan/internal/models"
	"github.com/docsift/mailscan/internal/notify"
)

type fakeLedger struct {
	mu          sync.Mutex
	nextID      int64
	created     []models.RequestDraft
	completions map[int64]int
	outputs     map[int64]*string
	createErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		completions: make(map[int64]int),
		outputs:     make(map[int64]*string),
	}
}

func (l *fakeLedger) Create(_ context.Context, draft models.RequestDraft) (*models.AnalysisRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return nil, l.createErr
	}
	l.nextID++
	l.created = append(l.created, draft)
	return &models.AnalysisRequest{
		ID:            l.nextID,
		CorrelationID: fmt.Sprintf("corr-%d", l.nextID),
		UserID:        draft.UserID,
		InputFilename: draft.InputFilename,
		InputPath:     draft.InputPath,
		Kind:          draft.Kind,
		Origin:        models.OriginMail,
		Status:        models.StatusPending,
	}, nil
}

func (l *fakeLedger) MarkCompleted(_ context.Context, id int64, outputPath *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completions[id]++
	l.outputs[id] = outputPath
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	uploads []string
	failAll bool
}

func (s *fakeStore) Upload(_ context.Context, r io.Reader, folder, filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return "", errors.New("storage unavailable")
	}
	_, _ = io.Copy(io.Discard, r)
	path := folder + "/" + filename
	s.uploads = append(s.uploads, path)
	return path, nil
}

type fakeService struct {
	failFor map[string]bool
}

func (s *fakeService) Submit(_ context.Context, _ models.Kind, _ *models.User, filename string, document io.Reader) (*analysis.Result, error) {
	_, _ = io.Copy(io.Discard, document)
	if s.failFor[filename] {
		return nil, &analysis.StatusError{StatusCode: 500, Body: "boom"}
	}
	return &analysis.Result{DocumentTitle: filename, Summary: "ok", Score: 0.8}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(models.Kind, *models.User, *analysis.Result) ([]byte, error) {
	return []byte("%PDF-report"), nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []notify.Job
}

func (n *fakeNotifier) Publish(_ context.Context, job notify.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}

func testEmail() *models.Email {
	return &models.Email{FromAddress: "ada@example.com", UID: 42}
}

func testUser() *models.User {
	return &models.User{ID: 7, Name: "Ada Lovelace", Email: "ada@example.com"}
}

func newTestPipeline(t *testing.T, ledger *fakeLedger, store *fakeStore, service *fakeService, notifier *fakeNotifier) *Pipeline {
	t.Helper()
	return New(Config{
		Ledger:         ledger,
		Store:          store,
		Analysis:       service,
		Renderer:       fakeRenderer{},
		Notifier:       notifier,
		TempDir:        t.TempDir(),
		AnalyzeFolder:  "analyze_documents",
		EvaluateFolder: "evaluate_documents",
		MaxInflight:    4,
	})
}

func TestProcessSuccess(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, ledger, store, &fakeService{}, notifier)

	att := models.Attachment{Filename: "contract.pdf", ContentType: "application/pdf", Size: 4, Data: []byte("%PDF")}
	p.Dispatch(context.Background(), testEmail(), models.KindAnalyze, testUser(), []models.Attachment{att})
	p.Wait()

	if len(ledger.created) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(ledger.created))
	}
	draft := ledger.created[0]
	if draft.Kind != models.KindAnalyze || draft.UserID != 7 {
		t.Errorf("draft = %+v", draft)
	}
	if !strings.HasPrefix(draft.InputPath, "analyze_documents/") {
		t.Errorf("input path = %q", draft.InputPath)
	}

	if got := ledger.completions[1]; got != 1 {
		t.Errorf("completions = %d, want exactly 1", got)
	}
	out := ledger.outputs[1]
	if out == nil || !strings.Contains(*out, "_report.pdf") {
		t.Errorf("output path = %v", out)
	}

	if len(notifier.jobs) != 1 || notifier.jobs[0].Type != notify.TypeAnalysisComplete {
		t.Fatalf("notifications = %+v", notifier.jobs)
	}
	if notifier.jobs[0].Data["output_path"] != *out {
		t.Errorf("notification output path = %q, want %q", notifier.jobs[0].Data["output_path"], *out)
	}

	// Original document and rendered report were both uploaded.
	if len(store.uploads) != 2 {
		t.Errorf("uploads = %v", store.uploads)
	}
}

func TestProcessServiceFailureIsSilent(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	service := &fakeService{failFor: map[string]bool{"contract.pdf": true}}
	p := newTestPipeline(t, ledger, &fakeStore{}, service, notifier)

	att := models.Attachment{Filename: "contract.pdf", ContentType: "application/pdf", Size: 4, Data: []byte("%PDF")}
	p.Dispatch(context.Background(), testEmail(), models.KindAnalyze, testUser(), []models.Attachment{att})
	p.Wait()

	// The row still reaches completed, but with no output and no
	// user-facing notification.
	if got := ledger.completions[1]; got != 1 {
		t.Errorf("completions = %d, want exactly 1", got)
	}
	if out := ledger.outputs[1]; out != nil {
		t.Errorf("output path = %q, want nil", *out)
	}
	if len(notifier.jobs) != 0 {
		t.Errorf("notifications = %+v, want none", notifier.jobs)
	}
}

func TestProcessSiblingIsolation(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	service := &fakeService{failFor: map[string]bool{"bad.pdf": true}}
	p := newTestPipeline(t, ledger, &fakeStore{}, service, notifier)

	atts := []models.Attachment{
		{Filename: "good.pdf", ContentType: "application/pdf", Size: 4, Data: []byte("%PDF")},
		{Filename: "bad.pdf", ContentType: "application/pdf", Size: 4, Data: []byte("%PDF")},
	}
	p.Dispatch(context.Background(), testEmail(), models.KindEvaluate, testUser(), atts)
	p.Wait()

	if len(ledger.created) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(ledger.created))
	}

	// Both rows settled exactly once regardless of the sibling failure.
	completedWithOutput := 0
	for id := int64(1); id <= 2; id++ {
		if got := ledger.completions[id]; got != 1 {
			t.Errorf("row %d completions = %d, want 1", id, got)
		}
		if ledger.outputs[id] != nil {
			completedWithOutput++
		}
	}
	if completedWithOutput != 1 {
		t.Errorf("rows with output = %d, want 1", completedWithOutput)
	}

	if len(notifier.jobs) != 1 || notifier.jobs[0].Type != notify.TypeEvaluationComplete {
		t.Errorf("notifications = %+v", notifier.jobs)
	}
}

func TestProcessUploadFailureCreatesNoRow(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	p := newTestPipeline(t, ledger, &fakeStore{failAll: true}, &fakeService{}, &fakeNotifier{})

	att := models.Attachment{Filename: "contract.pdf", ContentType: "application/pdf", Size: 4, Data: []byte("%PDF")}
	p.Dispatch(context.Background(), testEmail(), models.KindAnalyze, testUser(), []models.Attachment{att})
	p.Wait()

	if len(ledger.created) != 0 {
		t.Errorf("ledger rows = %d, want 0", len(ledger.created))
	}
}

func TestProcessCleansTempFiles(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	p := New(Config{
		Ledger:         newFakeLedger(),
		Store:          &fakeStore{},
		Analysis:       &fakeService{},
		Renderer:       fakeRenderer{},
		Notifier:       &fakeNotifier{},
		TempDir:        tempDir,
		AnalyzeFolder:  "analyze_documents",
		EvaluateFolder: "evaluate_documents",
	})

	att := models.Attachment{Filename: "contract.pdf", ContentType: "application/pdf", Size: 4, Data: []byte("%PDF")}
	p.Dispatch(context.Background(), testEmail(), models.KindAnalyze, testUser(), []models.Attachment{att})
	p.Wait()

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir not cleaned, %d entries left", len(entries))
	}
}
