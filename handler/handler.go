// Package handler adapts the gateway operations to API Gateway proxy events
// for the Lambda deployment path. The websocket status channel is not
// available in this mode.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"healthbridge/internal/usecase"
)

// Service is the gateway surface consumed by the Lambda adapter.
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
	Error string `json:"error"`
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	return &Handler{svc: svc}, nil
}

// Handle routes an API Gateway proxy event to the matching operation.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)

	if event.HTTPMethod != http.MethodPost {
		return respond(http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed."}, corrID), nil
	}

	switch event.Path {
	case "/translate":
		var req translateRequest
		if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
			return respond(http.StatusBadRequest, errorResponse{Error: "Text and target language are required."}, corrID), nil
		}
		out, err := h.svc.Translate(ctx, usecase.TranslateInput{Text: req.Text, TargetLanguage: req.TargetLanguage})
		if err != nil {
			return respondError(err, corrID), nil
		}
		return respond(http.StatusOK, translateResponse{DetectedLanguage: out.DetectedLanguage, TranslatedText: out.TranslatedText}, corrID), nil

	case "/summarize":
		var req summarizeRequest
		if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
			return respond(http.StatusBadRequest, errorResponse{Error: "Text is required."}, corrID), nil
		}
		out, err := h.svc.Summarize(ctx, usecase.SummarizeInput{Text: req.Text})
		if err != nil {
			return respondError(err, corrID), nil
		}
		return respond(http.StatusOK, summarizeResponse{Summary: out.Summary}, corrID), nil

	case "/analyze-symptoms":
		var req symptomsRequest
		if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
			return respond(http.StatusBadRequest, errorResponse{Error: "Symptoms are required."}, corrID), nil
		}
		out, err := h.svc.AnalyzeSymptoms(ctx, usecase.SymptomsInput{Symptoms: req.Symptoms})
		if err != nil {
			return respondError(err, corrID), nil
		}
		return respond(http.StatusOK, symptomsResponse{Analysis: out.Analysis}, corrID), nil
	}

	return respond(http.StatusNotFound, errorResponse{Error: "Not found."}, corrID), nil
}

func respondError(err error, corrID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return respond(http.StatusInternalServerError, errorResponse{Error: "Internal server error."}, corrID)
	}

	statusCode := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		statusCode = http.StatusBadRequest
	case usecase.ErrorRateLimited:
		statusCode = http.StatusTooManyRequests
	}
	return respond(statusCode, errorResponse{Error: message(ucErr)}, corrID)
}

func message(e *usecase.Error) string {
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

func respond(statusCode int, v any, corrID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		statusCode = http.StatusInternalServerError
		body = []byte(`{"error":"Internal server error."}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": corrID,
		},
		Body: string(body),
	}
}

// correlationID returns the caller-supplied id, matching header names
// case-insensitively, or a fresh uuid.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "X-Correlation-Id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
