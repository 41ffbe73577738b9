// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package metrics collects Prometheus series for the federation engine.

# Overview

Collector registers every series through promauto under one namespace and
implements federation.MetricsRecorder, so an Orchestrator built with
WithMetrics(collector) reports its runs without further glue.

# Series

  - Federation: federations_total and federation_duration_seconds by status,
    plus histograms of offered sources and returned results.
  - Sources: source_queries_total by source and status,
    source_query_duration_seconds, processing_details_total by error code,
    source_vetoes_total and plugin_failures_total.
  - Backends: upstream HTTP request counts grouped by status class, and
    database connection gauges with query latency.
  - Executor: worker, active, queued and rejected task gauges fed from
    pool.GoroutinePoolStats.
*/
package metrics
