// Package httpapi exposes the gateway over REST plus a websocket status
// channel.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthbridge/internal/observability"
	"healthbridge/internal/ratelimit"
	"healthbridge/internal/status"
	"healthbridge/internal/usecase"
)

// Service is the gateway surface consumed by the HTTP layer.
type Service interface {
	Translate(ctx context.Context, in usecase.TranslateInput) (usecase.TranslateOutput, error)
	Summarize(ctx context.Context, in usecase.SummarizeInput) (usecase.SummarizeOutput, error)
	AnalyzeSymptoms(ctx context.Context, in usecase.SymptomsInput) (usecase.SymptomsOutput, error)
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
}

type translateResponse struct {
	DetectedLanguage string `json:"detectedLanguage"`
	TranslatedText   string `json:"translatedText"`
}

type summarizeRequest struct {
	Text string `json:"text"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

type symptomsRequest struct {
	Symptoms string `json:"symptoms"`
}

type symptomsResponse struct {
	Analysis string `json:"analysis"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Server routes the three gateway endpoints, the websocket status channel,
// and the operational endpoints.
type Server struct {
	svc         Service
	limiter     *ratelimit.Limiter
	broadcaster *status.Broadcaster
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

func New(svc Service, limiter *ratelimit.Limiter, b *status.Broadcaster, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("httpapi: service must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("httpapi: limiter must not be nil")
	}
	if b == nil {
		return nil, errors.New("httpapi: broadcaster must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:         svc,
		limiter:     limiter,
		broadcaster: b,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Routes builds the handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /translate", s.withQuota("translate", s.handleTranslate))
	mux.Handle("POST /summarize", s.withQuota("summarize", s.handleSummarize))
	mux.Handle("POST /analyze-symptoms", s.withQuota("analyze-symptoms", s.handleSymptoms))
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.withLogging(mux)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeClientError(w, "translate", "Text and target language are required.")
		return
	}
	out, err := s.svc.Translate(r.Context(), usecase.TranslateInput{
		Text:           req.Text,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		s.writeError(w, "translate", err)
		return
	}
	observability.RequestsTotal.WithLabelValues("translate", "ok").Inc()
	writeJSON(w, http.StatusOK, translateResponse{
		DetectedLanguage: out.DetectedLanguage,
		TranslatedText:   out.TranslatedText,
	})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeClientError(w, "summarize", "Text is required.")
		return
	}
	out, err := s.svc.Summarize(r.Context(), usecase.SummarizeInput{Text: req.Text})
	if err != nil {
		s.writeError(w, "summarize", err)
		return
	}
	observability.RequestsTotal.WithLabelValues("summarize", "ok").Inc()
	writeJSON(w, http.StatusOK, summarizeResponse{Summary: out.Summary})
}

func (s *Server) handleSymptoms(w http.ResponseWriter, r *http.Request) {
	var req symptomsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeClientError(w, "analyze-symptoms", "Symptoms are required.")
		return
	}
	out, err := s.svc.AnalyzeSymptoms(r.Context(), usecase.SymptomsInput{Symptoms: req.Symptoms})
	if err != nil {
		s.writeError(w, "analyze-symptoms", err)
		return
	}
	observability.RequestsTotal.WithLabelValues("analyze-symptoms", "ok").Inc()
	writeJSON(w, http.StatusOK, symptomsResponse{Analysis: out.Analysis})
}

// handleEvents upgrades the connection and streams status events until the
// client goes away. Slow clients miss events rather than backing up the
// publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel := s.broadcaster.Subscribe()
	defer cancel()
	observability.StatusListeners.Inc()
	defer observability.StatusListeners.Dec()

	// Drain client frames so closes are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if writeErr := conn.WriteJSON(ev); writeErr != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withQuota enforces the per-client request quota on an endpoint.
func (s *Server) withQuota(endpoint string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.limiter.Allow(clientKey(r))
		if !d.Allowed {
			observability.RateLimitedTotal.Inc()
			observability.RequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(d.RetryAfter.Seconds())+1))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:   "Too many requests",
				Details: fmt.Sprintf("Rate limit is %d requests per minute.", d.Limit),
			})
			return
		}
		next(w, r)
	})
}

// withLogging assigns a correlation id and logs every request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Correlation-Id")
		if corrID == "" {
			corrID = uuid.NewString()
		}
		w.Header().Set("X-Correlation-Id", corrID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"correlation_id", corrID,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the websocket upgrade keeps working behind the
// logging middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("httpapi: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (s *Server) writeClientError(w http.ResponseWriter, endpoint, message string) {
	observability.RequestsTotal.WithLabelValues(endpoint, "client_error").Inc()
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, err error) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		s.logger.Error("unexpected handler error", "endpoint", endpoint, "err", err)
		observability.RequestsTotal.WithLabelValues(endpoint, "error").Inc()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error."})
		return
	}

	statusCode, outcome := http.StatusInternalServerError, "error"
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		statusCode, outcome = http.StatusBadRequest, "client_error"
	case usecase.ErrorRateLimited:
		statusCode, outcome = http.StatusTooManyRequests, "rate_limited"
	}
	if statusCode >= http.StatusInternalServerError {
		s.logger.Error("handler error", "endpoint", endpoint, "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	observability.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	writeJSON(w, statusCode, errorResponse{Error: errorMessage(ucErr)})
}

func errorMessage(e *usecase.Error) string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Code {
	case usecase.ErrorQuotaExhausted:
		return "The AI service quota is exhausted. Please try again later."
	case usecase.ErrorUpstream:
		return "An upstream service failed. Please try again."
	case usecase.ErrorRateLimited:
		return "Too many requests"
	default:
		return "Internal server error."
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("httpapi: empty body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// clientKey identifies the caller for quota purposes: the first hop of
// X-Forwarded-For when present, else the remote address without its port.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
