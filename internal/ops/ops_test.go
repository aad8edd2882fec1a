package ops

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotify(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sig := NewSignal(srv.URL)
	sig.Notify(context.Background(), "mailbox reopened")

	if got["text"] != "mailbox reopened" {
		t.Errorf("text = %q, want %q", got["text"], "mailbox reopened")
	}
}

func TestNoopWhenUnconfigured(t *testing.T) {
	t.Parallel()

	// Must not panic or block without a URL.
	NewSignal("").Notify(context.Background(), "ignored")
}
