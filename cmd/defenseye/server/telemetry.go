package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/DefensEye/cmmc12/internal/metrics"
)

const (
	meterName      = "github.com/DefensEye/cmmc12"
	exportInterval = 15 * time.Second
)

var serviceName = semconv.ServiceNameKey.String("defenseye")

// SetupTelemetry installs an OTLP/gRPC meter provider when endpoint is set
// and returns the analysis observer plus a shutdown function. Without an
// endpoint the global no-op provider is used.
func SetupTelemetry(ctx context.Context, endpoint string) (*metrics.AnalysisObserver, func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error
	shutDown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	if endpoint != "" {
		conn, err := grpc.NewClient(endpoint,
			// FIXME: Configure secure credential options
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
		}
		shutdownFuncs = append(shutdownFuncs, func(context.Context) error { return conn.Close() })

		provider, err := newMeterProvider(ctx, conn)
		if err != nil {
			return nil, nil, errors.Join(err, shutDown(ctx))
		}
		otel.SetMeterProvider(provider)
		// Flush metrics before the connection closes.
		shutdownFuncs = append([]func(context.Context) error{provider.Shutdown}, shutdownFuncs...)
	}

	observer, err := newObserver(otel.Meter(meterName))
	if err != nil {
		return nil, nil, errors.Join(err, shutDown(ctx))
	}
	return observer, shutDown, nil
}

func newMeterProvider(ctx context.Context, conn *grpc.ClientConn) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			serviceName,
		),
	)
	if err != nil {
		return nil, err
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(exportInterval))),
		sdkmetric.WithResource(res),
	), nil
}

func newObserver(meter metric.Meter) (*metrics.AnalysisObserver, error) {
	observer, err := metrics.NewAnalysisObserver(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return observer, nil
}
