package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"healthbridge/handler"
	"healthbridge/internal/cache"
	"healthbridge/internal/integrations/openai"
	"healthbridge/internal/integrations/paramstore"
	"healthbridge/internal/integrations/translator"
	"healthbridge/internal/status"
	"healthbridge/internal/throttle"
	"healthbridge/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	model := env("OPENAI_MODEL", "gpt-4o-mini")
	cacheTTL := time.Duration(envInt("CACHE_TTL_SECONDS", 3600)) * time.Second
	minGap := time.Duration(envInt("AI_MIN_GAP_MS", 1000)) * time.Millisecond
	maxRetries := envInt("AI_MAX_RETRIES", throttle.DefaultMaxRetries)
	initialDelay := time.Duration(envInt("AI_INITIAL_DELAY_MS", 2000)) * time.Millisecond

	// ---- AWS SDK config ----
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(ssmClient, paramPrefix+"/openai-api-key")
	if err != nil {
		slog.Error("failed to create openai client", "err", err)
		os.Exit(1)
	}

	translatorKey, err := ssmClient.GetParameter(ctx, paramPrefix+"/translator-api-key")
	if err != nil {
		slog.Error("failed to load translator key", "err", err)
		os.Exit(1)
	}
	translatorClient, err := translator.NewClient(translatorKey)
	if err != nil {
		slog.Error("failed to create translator client", "err", err)
		os.Exit(1)
	}

	// ---- Service ----
	// Lambda invocations have no websocket listeners; events fall on the floor.
	svc, err := usecase.NewService(
		translatorClient,
		openaiClient,
		throttle.NewScheduler(minGap, maxRetries, initialDelay),
		cache.New(cacheTTL),
		status.NewBroadcaster(),
		model,
	)
	if err != nil {
		slog.Error("failed to create service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
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
