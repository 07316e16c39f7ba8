package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/reservepay/retryd/internal/core"
	"github.com/reservepay/retryd/internal/handler"
	"github.com/reservepay/retryd/internal/metrics"
	"github.com/reservepay/retryd/internal/notify"
	"github.com/reservepay/retryd/internal/processor"
	"github.com/reservepay/retryd/internal/provider"
	"github.com/reservepay/retryd/internal/scheduler"
	"github.com/reservepay/retryd/internal/server"
	"github.com/reservepay/retryd/internal/state"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := server.LoadConfig()
	if cfg.APIKey == "" && !cfg.AllowInsecureNoAuth {
		logger.Error("refusing to start without API authentication", "hint", "set RETRYD_API_KEY or RETRYD_ALLOW_INSECURE_NO_AUTH=true for local development")
		os.Exit(1)
	}
	if cfg.AllowInsecureNoAuth {
		slog.Warn("running without authentication; intended for local development only")
	}

	// Configure AWS SDK
	awsCfg, err := buildAWSConfig(cfg)
	if err != nil {
		logger.Error("failed to configure AWS", "error", err)
		os.Exit(1)
	}

	// Create AWS clients
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	sqsClient := sqs.NewFromConfig(awsCfg)

	// Create DynamoDB state store
	store := state.NewDynamoDBStore(dynamoClient, cfg.DynamoDBTable)
	if err := store.EnsureTable(context.Background()); err != nil {
		logger.Error("failed to ensure DynamoDB table", "error", err)
		os.Exit(1)
	}
	logger.Info("DynamoDB state store ready", "table", cfg.DynamoDBTable)

	// Notification dispatcher: SQS when a queue is configured, log-only
	// otherwise.
	var dispatcher notify.Dispatcher
	if cfg.NotifyQueueURL != "" {
		dispatcher = notify.NewSQSDispatcher(sqsClient, cfg.NotifyQueueURL, store, logger)
		logger.Info("notification dispatcher ready", "queue_url", cfg.NotifyQueueURL)
	} else {
		dispatcher = notify.NewLogDispatcher(store, logger)
		logger.Warn("no notification queue configured, notices are log-only")
	}

	// Handler registry over the payment provider client
	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	registry, err := handler.NewRegistry(providerClient)
	if err != nil {
		logger.Error("failed to build handler registry", "error", err)
		os.Exit(1)
	}

	// Retry processor
	proc := processor.New(store, registry, dispatcher, logger, &processor.Options{
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.Workers,
		ClaimTimeout: cfg.ClaimTimeout,
	})
	if err := proc.SeedDefaultPolicies(context.Background()); err != nil {
		logger.Error("failed to seed retry policies", "error", err)
		os.Exit(1)
	}

	metrics.Init(core.Version, "dynamodb")

	// Start background scheduler
	sched := scheduler.New(proc, logger, scheduler.Options{
		CycleInterval:   cfg.CycleInterval,
		CycleCron:       cfg.CycleCron,
		ReclaimInterval: cfg.ReclaimInterval,
	})
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// Create HTTP server
	router := server.NewRouter(proc, logger, cfg)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("retryd server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func buildAWSConfig(cfg server.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
	}

	// For LocalStack or custom endpoints
	if cfg.AWSEndpointURL != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               cfg.AWSEndpointURL,
					HostnameImmutable: true,
					PartitionID:       "aws",
				}, nil
			},
		)
		opts = append(opts,
			config.WithEndpointResolverWithOptions(customResolver),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		)
	}

	return config.LoadDefaultConfig(context.Background(), opts...)
}
