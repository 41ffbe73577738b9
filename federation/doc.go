// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package federation implements the scatter-gather query engine of catalogfed.

# Overview

An Orchestrator takes one QueryRequest and a list of types.Source values,
runs one task per selected source on a caller-owned Executor and merges the
locally sorted partial results into one globally ordered page. Slow and
failing sources degrade the answer instead of failing it: every problem is
reported as a types.ProcessingDetail on the response.

# Pipeline

  - Source selection: an explicit SourceIDs subset restricts the run; unknown
    ids are reported as unavailable sources.
  - Pre-query chain: every source gets a private copy of the request, which
    each PreQueryPlugin may rewrite (Continue), veto (Skip) or fail on
    (Failed). Failures and panics are logged and the chain goes on.
  - Dispatch: tasks are submitted to the Executor with a context bounded by
    the query timeout.
  - Merge: a Monitor drains completions in arrival order and keeps a sorted
    window bounded by the effective page size (SortedMonitor by default).
  - Offset: for deep pages across two or more sources every source is asked
    for its first offset+pageSize-1 results and an OffsetHandler discards the
    leading window, so no backend performs a deep skip.
  - Post-query chain: PostQueryPlugin values transform the assembled response.

# Ordering

Global order holds only when each source returns results already sorted by
the active Comparator. Ties keep completion order.

# Failure model

Federate returns an error only for invalid input. If the merge machinery
itself fails, the response is empty and carries a single detail for the
"unknown" source.
*/
package federation
