package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	weaviateclient "github.com/weaviate/weaviate-go-client/v5/weaviate"

	"profile-agent/handler"
	"profile-agent/internal/integrations/delivery"
	"profile-agent/internal/integrations/openai"
	"profile-agent/internal/integrations/paramstore"
	"profile-agent/internal/integrations/weaviate"
	"profile-agent/internal/pipeline"
	"profile-agent/internal/ratelimit"
	"profile-agent/internal/repository"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	weaviateURL := mustEnv("WEAVIATE_URL")
	fromAddress := mustEnv("DELIVERY_FROM_ADDRESS")
	documentURL := mustEnv("DOCUMENT_URL")
	operatorTopic := mustEnv("OPERATOR_TOPIC_ARN")
	turnTimeout := time.Duration(envInt("TURN_TIMEOUT_SECONDS", 30)) * time.Second
	rateCapacity := envInt("ANALYTICS_RATE_CAPACITY", 10)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
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
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Error("WEAVIATE_URL is invalid", "url", weaviateURL, "err", err)
		os.Exit(1)
	}
	weaviateAPI, err := weaviateclient.NewClient(weaviateclient.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("failed to create Weaviate client", "err", err)
		os.Exit(1)
	}
	retriever, err := weaviate.New(weaviateAPI)
	if err != nil {
		slog.Error("failed to create retriever", "err", err)
		os.Exit(1)
	}

	generator, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	emailChannel, err := delivery.NewEmailChannel(awssesv2.NewFromConfig(cfg), fromAddress, documentURL)
	if err != nil {
		slog.Error("failed to create email channel", "err", err)
		os.Exit(1)
	}
	notifier, err := delivery.NewOperatorNotifier(awssns.NewFromConfig(cfg), operatorTopic)
	if err != nil {
		slog.Error("failed to create operator notifier", "err", err)
		os.Exit(1)
	}

	// ---- Pipeline ----
	svc, err := pipeline.NewService(
		ssmClient,
		retriever,
		generator,
		stateClient,
		emailChannel,
		notifier,
		stateClient,
		paramPrefix,
		turnTimeout,
	)
	if err != nil {
		slog.Error("failed to create pipeline service", "err", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.New(rateCapacity, float64(rateCapacity)/2)
	if err != nil {
		slog.Error("failed to create rate limiter", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(svc, limiter)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
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
