// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package server runs the catalogfed HTTP API.

Manager wraps net/http.Server with non-blocking Start, graceful Shutdown and
SIGINT/SIGTERM handling. NewHandler builds the API mux over a federation
engine: health, version, source listing, POST /v1/query and, optionally, the
Prometheus /metrics endpoint. Every JSON answer uses the Response envelope.

Middleware wraps the mux. Chain applies them outermost first; the package
provides panic recovery, X-Request-ID propagation, OpenTelemetry server
spans, access logging, security headers, request metrics and a per-client
rate limiter.
*/
package server
