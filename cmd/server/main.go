package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"healthbridge/internal/cache"
	"healthbridge/internal/httpapi"
	"healthbridge/internal/integrations/openai"
	"healthbridge/internal/integrations/paramstore"
	"healthbridge/internal/integrations/translator"
	"healthbridge/internal/ratelimit"
	"healthbridge/internal/status"
	"healthbridge/internal/throttle"
	"healthbridge/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	port := env("PORT", "8080")
	model := env("OPENAI_MODEL", "gpt-4o-mini")
	translatorKey := mustEnv("TRANSLATOR_API_KEY")
	cacheTTL := time.Duration(envInt("CACHE_TTL_SECONDS", 3600)) * time.Second
	requestsPerMinute := envInt("RATE_LIMIT_PER_MINUTE", ratelimit.DefaultLimit)
	minGap := time.Duration(envInt("AI_MIN_GAP_MS", 1000)) * time.Millisecond
	maxRetries := envInt("AI_MAX_RETRIES", throttle.DefaultMaxRetries)
	initialDelay := time.Duration(envInt("AI_INITIAL_DELAY_MS", 2000)) * time.Millisecond

	// ---- Providers ----
	// The chat-completion key resolves lazily on first use, from the
	// environment when set, else from SSM under PARAM_PREFIX.
	keyGetter, keyName := openaiKeySource(ctx)

	openaiClient, err := openai.NewClient(keyGetter, keyName, openaiOptions()...)
	if err != nil {
		slog.Error("failed to create openai client", "err", err)
		os.Exit(1)
	}

	translatorOpts := []translator.Option{}
	if base := os.Getenv("TRANSLATOR_BASE_URL"); base != "" {
		translatorOpts = append(translatorOpts, translator.WithBaseURL(base))
	}
	translatorClient, err := translator.NewClient(translatorKey, translatorOpts...)
	if err != nil {
		slog.Error("failed to create translator client", "err", err)
		os.Exit(1)
	}

	// ---- Shared state ----
	responseCache := cache.New(cacheTTL)
	broadcaster := status.NewBroadcaster()
	scheduler := throttle.NewScheduler(minGap, maxRetries, initialDelay)
	limiter := ratelimit.New(requestsPerMinute, time.Minute)

	// ---- Service and ingress ----
	svc, err := usecase.NewService(translatorClient, openaiClient, scheduler, responseCache, broadcaster, model)
	if err != nil {
		slog.Error("failed to create service", "err", err)
		os.Exit(1)
	}

	api, err := httpapi.New(svc, limiter, broadcaster, slog.Default())
	if err != nil {
		slog.Error("failed to create http api", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "err", serveErr)
			os.Exit(1)
		}
	}()

	<-stopCtx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "err", err)
		os.Exit(1)
	}
}

// openaiKeySource picks where the chat-completion API key comes from. A
// missing key is not fatal here: the client fails on first use instead.
func openaiKeySource(ctx context.Context) (openai.Getter, string) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return paramstore.Static(key), "OPENAI_API_KEY"
	}

	prefix := os.Getenv("PARAM_PREFIX")
	if prefix == "" {
		return paramstore.Static(""), "OPENAI_API_KEY"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	return ssmClient, prefix + "/openai-api-key"
}

func openaiOptions() []openai.Option {
	var opts []openai.Option
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	return opts
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
