// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/praxislearn/splitengine/pkg/logging"
	"github.com/praxislearn/splitengine/services/experiment/engine"
	"github.com/praxislearn/splitengine/services/experiment/notify"
	"github.com/praxislearn/splitengine/services/experiment/routes"
	"github.com/praxislearn/splitengine/services/experiment/storage/badgerstore"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("experiment-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("EXPERIMENT_PORT")
	if port == "" {
		port = "12310"
	}
	dataDir := os.Getenv("EXPERIMENT_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data/experiments"
	}
	authToken := os.Getenv("EXPERIMENT_AUTH_TOKEN")

	logger := logging.New(logging.Config{
		Service: "experiment",
		JSON:    true,
		LogDir:  os.Getenv("EXPERIMENT_LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	store, err := badgerstore.Open(badgerstore.DefaultConfig(dataDir))
	if err != nil {
		log.Fatalf("failed to open experiment store: %v", err)
	}
	defer store.Close()

	var deployer notify.Deployer = notify.NopDeployer{}
	if url := os.Getenv("CONTENT_DEPLOY_URL"); url != "" {
		deployer = notify.NewHTTPDeployer(url)
		slog.Info("deployment signals will be sent to the content system", "url", url)
	} else {
		slog.Info("CONTENT_DEPLOY_URL not set, deployment signals are acknowledged locally")
	}
	var notifier notify.Notifier = notify.NopNotifier{}
	if url := os.Getenv("LIFECYCLE_WEBHOOK_URL"); url != "" {
		notifier = notify.NewWebhookNotifier(url, logger.Slog())
	}

	eng := engine.New(engine.Config{
		Store:    store,
		Deployer: deployer,
		Notifier: notifier,
		Logger:   logger.Slog(),
	})

	router := gin.Default()
	router.Use(otelgin.Middleware("experiment-service"))
	routes.SetupRoutes(router, eng, authToken)

	log.Println("Starting the experiment server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
