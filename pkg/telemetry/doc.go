// Package telemetry provides structured logging, distributed tracing and
// Prometheus metrics for the workspace ignition service.
//
// Logging is built on zerolog and exposes field helpers for the
// identifiers that matter during an ignition (workspace id, step name,
// droplet id). Tracing is built on OpenTelemetry with OTLP and stdout
// exporters; every ignition gets a root span with one child span per saga
// step. Metrics follow the no-op-when-disabled pattern: a Metrics instance
// created with Enabled=false accepts every recording call and does
// nothing, so call sites never branch on configuration.
//
// The Telemetry bundle ties the three together for service startup:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(ctx)
package telemetry
