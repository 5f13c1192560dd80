package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"healthbridge/internal/domain"
	"healthbridge/internal/integrations/paramstore"
)

// ---------------------------------------------------------------------------
// chatURL helper
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_NilGetter(t *testing.T) {
	_, err := NewClient(nil, "openai-key")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_EmptyParamName(t *testing.T) {
	_, err := NewClient(paramstore.Static("sk-test"), "  ")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// resolveAPIKey — lazy resolution
// ---------------------------------------------------------------------------

type countingGetter struct {
	val   string
	err   error
	calls int
}

func (g *countingGetter) GetParameter(_ context.Context, _ string) (string, error) {
	g.calls++
	return g.val, g.err
}

func TestResolveAPIKey_FetchedOnce(t *testing.T) {
	g := &countingGetter{val: "sk-from-store"}
	c, err := NewClient(g, "openai-key")
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-store", key)

	_, _ = c.resolveAPIKey(context.Background())
	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, g.calls, "key store must only be hit once per process lifetime")
}

func TestChat_MissingKey_FailsOnFirstUse(t *testing.T) {
	c, err := NewClient(paramstore.Static(""), "openai-key")
	require.NoError(t, err, "construction must succeed without a key")

	_, err = c.Chat(context.Background(), "gpt-4o-mini", []domain.ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

func TestChat_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"a concise summary"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(paramstore.Static("sk-test"), "openai-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	out, err := c.Chat(context.Background(), "gpt-4o-mini", []domain.ChatMessage{
		{Role: "system", Content: "summarize"},
		{Role: "user", Content: "long text"},
	})
	require.NoError(t, err)
	require.Equal(t, "a concise summary", out)
	require.Equal(t, "Bearer sk-test", gotAuth)
}

func TestChat_EmptyModel(t *testing.T) {
	c, err := NewClient(paramstore.Static("sk-test"), "openai-key")
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "", nil)
	require.Error(t, err)
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(paramstore.Static("sk-test"), "openai-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "gpt-4o-mini", []domain.ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestChat_Upstream429_ReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(paramstore.Static("sk-test"), "openai-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "gpt-4o-mini", []domain.ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	require.Equal(t, 7*time.Second, statusErr.RetryAfter)
	require.False(t, statusErr.IsQuotaExhausted())
}

// ---------------------------------------------------------------------------
// HTTPStatusError
// ---------------------------------------------------------------------------

func TestIsQuotaExhausted(t *testing.T) {
	cases := []struct {
		name string
		err  HTTPStatusError
		want bool
	}{
		{"insufficient_quota code", HTTPStatusError{StatusCode: 429, Body: `{"error":{"code":"insufficient_quota"}}`}, true},
		{"quota message", HTTPStatusError{StatusCode: 429, Body: `You exceeded your current quota, please check your plan.`}, true},
		{"plain throttle", HTTPStatusError{StatusCode: 429, Body: `Rate limit reached for requests`}, false},
		{"non-429", HTTPStatusError{StatusCode: 500, Body: `insufficient_quota`}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.err.IsQuotaExhausted())
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	require.Equal(t, 3*time.Second, parseRetryAfter("3"))
	require.Equal(t, time.Duration(0), parseRetryAfter(""))
	require.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	require.Equal(t, time.Duration(0), parseRetryAfter("-2"))
}
