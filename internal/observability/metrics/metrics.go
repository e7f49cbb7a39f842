package metrics

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	walletTransactions  metric.Int64Counter
	walletRejections    metric.Int64Counter
	walletRetries       metric.Int64Counter
	coverageResolutions metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "opdwallet"
	}
	meter := provider.Meter(name)

	walletTransactions, err := meter.Int64Counter("opdwallet_wallet_transactions_total")
	if err != nil {
		return nil, err
	}
	walletRejections, err := meter.Int64Counter("opdwallet_wallet_rejections_total")
	if err != nil {
		return nil, err
	}
	walletRetries, err := meter.Int64Counter("opdwallet_wallet_sequence_retries_total")
	if err != nil {
		return nil, err
	}
	coverageResolutions, err := meter.Int64Counter("opdwallet_coverage_resolutions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		walletTransactions:  walletTransactions,
		walletRejections:    walletRejections,
		walletRetries:       walletRetries,
		coverageResolutions: coverageResolutions,
	}, nil
}

// RecordWalletTransaction increments committed wallet transaction counts.
func (m *Metrics) RecordWalletTransaction(ctx context.Context, txType, categoryID string) {
	if m == nil {
		return
	}
	m.walletTransactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", strings.TrimSpace(txType)),
		attribute.String("category_id", strings.TrimSpace(categoryID)),
	))
}

// RecordWalletRejection increments rejected wallet operation counts.
func (m *Metrics) RecordWalletRejection(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.walletRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", strings.TrimSpace(reason)),
	))
}

// RecordWalletRetry counts sequence-number collisions on concurrent writes.
func (m *Metrics) RecordWalletRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.walletRetries.Add(ctx, 1)
}

// RecordCoverageResolution increments coverage resolution counts.
func (m *Metrics) RecordCoverageResolution(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.coverageResolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	}
}
