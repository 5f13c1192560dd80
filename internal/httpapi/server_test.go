package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"healthbridge/internal/domain"
	"healthbridge/internal/ratelimit"
	"healthbridge/internal/status"
	"healthbridge/internal/usecase"
)

type stubService struct {
	translateOut usecase.TranslateOutput
	summarizeOut usecase.SummarizeOutput
	symptomsOut  usecase.SymptomsOutput
	err          error

	translateIn usecase.TranslateInput
	summarizeIn usecase.SummarizeInput
	symptomsIn  usecase.SymptomsInput
}

func (s *stubService) Translate(_ context.Context, in usecase.TranslateInput) (usecase.TranslateOutput, error) {
	s.translateIn = in
	return s.translateOut, s.err
}

func (s *stubService) Summarize(_ context.Context, in usecase.SummarizeInput) (usecase.SummarizeOutput, error) {
	s.summarizeIn = in
	return s.summarizeOut, s.err
}

func (s *stubService) AnalyzeSymptoms(_ context.Context, in usecase.SymptomsInput) (usecase.SymptomsOutput, error) {
	s.symptomsIn = in
	return s.symptomsOut, s.err
}

type env struct {
	svc         *stubService
	broadcaster *status.Broadcaster
	srv         *httptest.Server
}

func newEnv(t *testing.T, limit int) *env {
	t.Helper()
	svc := &stubService{}
	b := status.NewBroadcaster()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(svc, ratelimit.New(limit, time.Minute), b, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return &env{svc: svc, broadcaster: b, srv: srv}
}

func (e *env) post(t *testing.T, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func parseBody[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

// ---------------------------------------------------------------------------
// REST endpoints
// ---------------------------------------------------------------------------

func TestTranslate_HappyPath(t *testing.T) {
	e := newEnv(t, 100)
	e.svc.translateOut = usecase.TranslateOutput{DetectedLanguage: "es", TranslatedText: "Hello"}

	resp := e.post(t, "/translate", `{"text":"Hola","targetLanguage":"en"}`, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := parseBody[translateResponse](t, resp.Body)
	require.Equal(t, "es", out.DetectedLanguage)
	require.Equal(t, "Hello", out.TranslatedText)
	require.Equal(t, usecase.TranslateInput{Text: "Hola", TargetLanguage: "en"}, e.svc.translateIn)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-Id"))
}

func TestSummarize_EmptyBody_Returns400(t *testing.T) {
	e := newEnv(t, 100)

	resp := e.post(t, "/summarize", "", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, "Text is required.", out.Error)
}

func TestSummarize_ValidationErrorFromService(t *testing.T) {
	e := newEnv(t, 100)
	e.svc.err = &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_text", Message: "Text is required."}

	resp := e.post(t, "/summarize", `{"text":""}`, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, "Text is required.", out.Error)
}

func TestSymptoms_HappyPath(t *testing.T) {
	e := newEnv(t, 100)
	e.svc.symptomsOut = usecase.SymptomsOutput{Analysis: "rest and fluids"}

	resp := e.post(t, "/analyze-symptoms", `{"symptoms":"headache"}`, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := parseBody[symptomsResponse](t, resp.Body)
	require.Equal(t, "rest and fluids", out.Analysis)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"quota exhausted", &usecase.Error{Code: usecase.ErrorQuotaExhausted, Reason: "summarize_error"}, http.StatusInternalServerError},
		{"upstream", &usecase.Error{Code: usecase.ErrorUpstream, Reason: "summarize_error"}, http.StatusInternalServerError},
		{"rate limited", &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "quota"}, http.StatusTooManyRequests},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, 100)
			e.svc.err = tc.err

			resp := e.post(t, "/summarize", `{"text":"hello"}`, nil)
			defer resp.Body.Close()

			require.Equal(t, tc.status, resp.StatusCode)
			out := parseBody[errorResponse](t, resp.Body)
			require.NotEmpty(t, out.Error)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newEnv(t, 100)

	resp, err := e.srv.Client().Get(e.srv.URL + "/translate")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// ---------------------------------------------------------------------------
// Quota middleware
// ---------------------------------------------------------------------------

func TestQuota_SixteenthRequestDenied(t *testing.T) {
	e := newEnv(t, 15)
	e.svc.translateOut = usecase.TranslateOutput{DetectedLanguage: "es", TranslatedText: "Hello"}
	headers := map[string]string{"X-Forwarded-For": "203.0.113.7"}

	for i := 0; i < 15; i++ {
		resp := e.post(t, "/translate", `{"text":"Hola","targetLanguage":"en"}`, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
		resp.Body.Close()
	}

	resp := e.post(t, "/translate", `{"text":"Hola","targetLanguage":"en"}`, headers)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, "Too many requests", out.Error)
	require.NotEmpty(t, out.Details)
}

func TestQuota_ClientsAreIndependent(t *testing.T) {
	e := newEnv(t, 1)
	e.svc.translateOut = usecase.TranslateOutput{DetectedLanguage: "es", TranslatedText: "Hello"}

	resp := e.post(t, "/translate", `{"text":"Hola","targetLanguage":"en"}`, map[string]string{"X-Forwarded-For": "198.51.100.1"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.post(t, "/translate", `{"text":"Hola","targetLanguage":"en"}`, map[string]string{"X-Forwarded-For": "198.51.100.2"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/translate", nil)
	r.RemoteAddr = "192.0.2.9:51234"
	require.Equal(t, "192.0.2.9", clientKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", clientKey(r))
}

// ---------------------------------------------------------------------------
// Status channel
// ---------------------------------------------------------------------------

func TestEvents_StreamsStatusEvents(t *testing.T) {
	e := newEnv(t, 100)

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the server a beat to register the subscription before publishing.
	require.Eventually(t, func() bool { return e.broadcaster.Len() == 1 }, time.Second, 5*time.Millisecond)

	e.broadcaster.Publish(domain.StatusEvent{Action: domain.ActionTranslate, Message: "processing"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.StatusEvent
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, domain.ActionTranslate, ev.Action)
	require.Equal(t, "processing", ev.Message)
}

// ---------------------------------------------------------------------------
// Operational endpoints
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	e := newEnv(t, 100)

	resp, err := e.srv.Client().Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, 100)

	resp, err := e.srv.Client().Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
