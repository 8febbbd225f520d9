// Package telemetry installs the global OpenTelemetry tracer provider,
// exporting spans over OTLP/HTTP. When disabled, the default no-op provider
// stays in place and spans cost nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// ModuleConfig holds YAML configuration for the tracing module.
type ModuleConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // host:port of the OTLP/HTTP collector
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// defaults fills zero values with sensible defaults.
func (c *ModuleConfig) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = "studio"
	}
}

// Module owns the tracer provider lifecycle.
type Module struct {
	config   ModuleConfig
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry.otel",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	m.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.Enabled && m.config.Endpoint == "" {
		return errors.New("telemetry: endpoint is required when enabled")
	}
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if !m.config.Enabled {
		m.logger.Debug("telemetry disabled")
		return nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(m.config.Endpoint)}
	if m.config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("telemetry: create exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(m.config.ServiceName),
	))
	if err != nil {
		return fmt.Errorf("telemetry: build resource: %w", err)
	}

	m.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(m.provider)

	m.logger.Info("telemetry started", "endpoint", m.config.Endpoint)
	return nil
}

// Stop implements core.Stopper. It flushes buffered spans.
func (m *Module) Stop(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
