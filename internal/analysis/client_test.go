package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docsift/mailscan/internal/config"
	"github.com/docsift/mailscan/internal/models"
)

func testUser() *models.User {
	return &models.User{ID: 7, Name: "Ada Lovelace", Email: "ada@example.com"}
}

func TestSubmitAnalyze(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("path = %q, want /analyze", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "key" || r.Header.Get("X-Api-Secret") != "secret" {
			t.Errorf("missing api credentials")
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart body: %v", err)
		}
		if got := r.FormValue("user_id"); got != "7" {
			t.Errorf("user_id = %q, want 7", got)
		}
		if got := r.FormValue("user_email"); got != "ada@example.com" {
			t.Errorf("user_email = %q", got)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "contract.pdf" {
			t.Errorf("filename = %q, want contract.pdf", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "%PDF-stub" {
			t.Errorf("file content = %q", data)
		}

		_ = json.NewEncoder(w).Encode(Result{
			DocumentTitle: "Contract",
			Summary:       "Looks fine.",
			Score:         0.92,
			Findings:      []Finding{{Section: "2.1", Severity: "low", Detail: "vague wording"}},
		})
	}))
	defer srv.Close()

	client := NewClient(config.Analysis{
		BaseURL:   srv.URL,
		APIKey:    "key",
		APISecret: "secret",
		Timeout:   5 * time.Second,
	})

	result, err := client.Submit(context.Background(), models.KindAnalyze, testUser(), "contract.pdf", strings.NewReader("%PDF-stub"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.DocumentTitle != "Contract" || result.Score != 0.92 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.Findings) != 1 {
		t.Errorf("findings = %d, want 1", len(result.Findings))
	}
}

func TestSubmitServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(config.Analysis{BaseURL: srv.URL, Timeout: 5 * time.Second})

	_, err := client.Submit(context.Background(), models.KindEvaluate, testUser(), "x.txt", strings.NewReader("x"))
	if err == nil {
		t.Fatalf("expected error for HTTP 503")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error %v is not a StatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", statusErr.StatusCode)
	}
}
