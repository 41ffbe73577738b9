// Package telemetry wires the OpenTelemetry SDK for catalogfed: one
// TracerProvider and MeterProvider exporting over OTLP gRPC, or noop
// providers when telemetry is disabled.
package telemetry
