package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	text string
	err  error
	wait time.Duration
}

func (s *stubCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if s.wait > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.wait):
		}
	}
	return s.text, s.err
}

func TestTimeoutCompleter(t *testing.T) {
	tests := []struct {
		name    string
		stub    *stubCompleter
		timeout time.Duration
		want    string
		wantErr bool
	}{
		{"trims output", &stubCompleter{text: "  85\n"}, time.Second, "85", false},
		{"wraps provider error", &stubCompleter{err: errors.New("boom")}, time.Second, "", true},
		{"enforces timeout", &stubCompleter{text: "late", wait: time.Second}, 10 * time.Millisecond, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &timeoutCompleter{next: tt.stub, timeout: tt.timeout, name: "stub", logger: logger.Discard()}
			got, err := c.Complete(context.Background(), Request{Prompt: "x"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModelFor(t *testing.T) {
	cfg := config.AIConfig{LargeModel: "large", SmallModel: "small"}
	assert.Equal(t, "large", modelFor(cfg, Large))
	assert.Equal(t, "small", modelFor(cfg, Small))

	cfg.SmallModel = ""
	assert.Equal(t, "large", modelFor(cfg, Small))
}

func TestNewCompleterUnknownProvider(t *testing.T) {
	_, err := NewCompleter(context.Background(), config.AIConfig{Provider: "nope"}, logger.Discard())
	assert.Error(t, err)
}

func TestOpenAIProvider(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "1",
			"choices": []map[string]any{{
				"index":   0,
				"message": map[string]any{"role": "assistant", "content": `{"title":"t"}`},
			}},
		})
	}))
	defer server.Close()

	completer, err := NewCompleter(context.Background(), config.AIConfig{
		Provider:   "groq",
		APIKey:     "key",
		BaseURL:    server.URL,
		LargeModel: "llama-3.3-70b-versatile",
		SmallModel: "llama-3.1-8b-instant",
		Timeout:    5 * time.Second,
	}, logger.Discard())
	require.NoError(t, err)

	got, err := completer.Complete(context.Background(), Request{
		System: "sys",
		Prompt: "caption",
		Model:  Small,
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"t"}`, got)

	assert.Equal(t, "llama-3.1-8b-instant", body["model"])
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestBackoff(t *testing.T) {
	base, max := 2*time.Second, 10*time.Second
	assert.Equal(t, 2*time.Second, Backoff(1, base, max))
	assert.Equal(t, 4*time.Second, Backoff(2, base, max))
	assert.Equal(t, 8*time.Second, Backoff(3, base, max))
	assert.Equal(t, 10*time.Second, Backoff(4, base, max))
	assert.Equal(t, time.Duration(0), Backoff(1, 0, max))
}

func TestSleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
