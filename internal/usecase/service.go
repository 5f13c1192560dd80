package usecase

import (
	"context"
	"errors"
	"strings"

	"healthbridge/internal/cache"
	"healthbridge/internal/domain"
	"healthbridge/internal/observability"
	"healthbridge/internal/throttle"
)

const (
	statusProcessing = "processing"
	statusComplete   = "complete"
	statusCached     = "cached"
	statusFailed     = "failed"
)

// LLMClient is the chat-completion provider.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// TranslationClient is the detection+translation provider.
type TranslationClient interface {
	Detect(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, target string) (string, error)
}

// Dispatcher funnels chat-completion calls through the throttled single slot.
type Dispatcher interface {
	Run(ctx context.Context, op func(context.Context) (string, error)) (string, error)
}

// ResponseCache stores computed responses under a fingerprint key.
type ResponseCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// EventPublisher receives status events; the broadcaster satisfies it.
type EventPublisher interface {
	Publish(ev domain.StatusEvent)
}

// Service implements the three gateway operations. They share the cache,
// the dispatcher, and the status publisher.
type Service struct {
	translator TranslationClient
	llm        LLMClient
	dispatch   Dispatcher
	cache      ResponseCache
	events     EventPublisher
	model      string
}

type TranslateInput struct {
	Text           string
	TargetLanguage string
}

type TranslateOutput struct {
	DetectedLanguage string
	TranslatedText   string
}

type SummarizeInput struct {
	Text string
}

type SummarizeOutput struct {
	Summary string
}

type SymptomsInput struct {
	Symptoms string
}

type SymptomsOutput struct {
	Analysis string
}

func NewService(tc TranslationClient, llm LLMClient, d Dispatcher, rc ResponseCache, ep EventPublisher, model string) (*Service, error) {
	if tc == nil {
		return nil, errors.New("usecase: translation client must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if d == nil {
		return nil, errors.New("usecase: dispatcher must not be nil")
	}
	if rc == nil {
		return nil, errors.New("usecase: response cache must not be nil")
	}
	if ep == nil {
		return nil, errors.New("usecase: event publisher must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	return &Service{
		translator: tc,
		llm:        llm,
		dispatch:   d,
		cache:      rc,
		events:     ep,
		model:      model,
	}, nil
}

// Translate detects the language of the text and translates it into the
// target language. When the detected language already equals the target the
// translation call is skipped and the input is returned unchanged.
func (s *Service) Translate(ctx context.Context, in TranslateInput) (TranslateOutput, error) {
	text := strings.TrimSpace(in.Text)
	target := strings.TrimSpace(in.TargetLanguage)
	if text == "" || target == "" {
		return TranslateOutput{}, newClientError("missing_fields", "Text and target language are required.")
	}
	s.publish(domain.ActionTranslate, statusProcessing)

	key := cache.Key(string(domain.ActionTranslate), text, target)
	if v, ok := s.cache.Get(key); ok {
		if out, ok := v.(TranslateOutput); ok {
			observability.CacheHitsTotal.WithLabelValues(string(domain.ActionTranslate)).Inc()
			s.publish(domain.ActionTranslate, statusCached)
			return out, nil
		}
	}
	observability.CacheMissesTotal.WithLabelValues(string(domain.ActionTranslate)).Inc()

	detected, err := s.translator.Detect(ctx, text)
	if err != nil {
		s.publish(domain.ActionTranslate, statusFailed)
		return TranslateOutput{}, s.upstreamError("detect_error", err)
	}

	translated := text
	if !strings.EqualFold(detected, target) {
		translated, err = s.translator.Translate(ctx, text, target)
		if err != nil {
			s.publish(domain.ActionTranslate, statusFailed)
			return TranslateOutput{}, s.upstreamError("translate_error", err)
		}
	}

	out := TranslateOutput{DetectedLanguage: detected, TranslatedText: translated}
	s.cache.Set(key, out)
	s.publish(domain.ActionTranslate, statusComplete)
	return out, nil
}

// Summarize produces a plain-language summary of the text via the
// chat-completion provider.
func (s *Service) Summarize(ctx context.Context, in SummarizeInput) (SummarizeOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return SummarizeOutput{}, newClientError("missing_text", "Text is required.")
	}
	s.publish(domain.ActionSummarize, statusProcessing)

	key := cache.Key(string(domain.ActionSummarize), text)
	if v, ok := s.cache.Get(key); ok {
		if out, ok := v.(SummarizeOutput); ok {
			observability.CacheHitsTotal.WithLabelValues(string(domain.ActionSummarize)).Inc()
			s.publish(domain.ActionSummarize, statusCached)
			return out, nil
		}
	}
	observability.CacheMissesTotal.WithLabelValues(string(domain.ActionSummarize)).Inc()

	summary, err := s.dispatch.Run(ctx, func(ctx context.Context) (string, error) {
		return s.llm.Chat(ctx, s.model, summaryMessages(text))
	})
	if err != nil {
		s.publish(domain.ActionSummarize, statusFailed)
		return SummarizeOutput{}, s.upstreamError("summarize_error", err)
	}

	out := SummarizeOutput{Summary: summary}
	s.cache.Set(key, out)
	s.publish(domain.ActionSummarize, statusComplete)
	return out, nil
}

// AnalyzeSymptoms asks the chat-completion provider for a non-diagnostic
// analysis of the described symptoms.
func (s *Service) AnalyzeSymptoms(ctx context.Context, in SymptomsInput) (SymptomsOutput, error) {
	symptoms := strings.TrimSpace(in.Symptoms)
	if symptoms == "" {
		return SymptomsOutput{}, newClientError("missing_symptoms", "Symptoms are required.")
	}
	s.publish(domain.ActionSymptoms, statusProcessing)

	key := cache.Key(string(domain.ActionSymptoms), symptoms)
	if v, ok := s.cache.Get(key); ok {
		if out, ok := v.(SymptomsOutput); ok {
			observability.CacheHitsTotal.WithLabelValues(string(domain.ActionSymptoms)).Inc()
			s.publish(domain.ActionSymptoms, statusCached)
			return out, nil
		}
	}
	observability.CacheMissesTotal.WithLabelValues(string(domain.ActionSymptoms)).Inc()

	analysis, err := s.dispatch.Run(ctx, func(ctx context.Context) (string, error) {
		return s.llm.Chat(ctx, s.model, symptomMessages(symptoms))
	})
	if err != nil {
		s.publish(domain.ActionSymptoms, statusFailed)
		return SymptomsOutput{}, s.upstreamError("symptoms_error", err)
	}

	out := SymptomsOutput{Analysis: analysis}
	s.cache.Set(key, out)
	s.publish(domain.ActionSymptoms, statusComplete)
	return out, nil
}

func (s *Service) publish(action domain.Action, message string) {
	s.events.Publish(domain.StatusEvent{Action: action, Message: message})
}

func (s *Service) upstreamError(reason string, err error) *Error {
	if errors.Is(err, throttle.ErrQuotaExhausted) {
		return newError(ErrorQuotaExhausted, reason, err)
	}
	return newError(ErrorUpstream, reason, err)
}
