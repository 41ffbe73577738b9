package federation

import (
	"maps"
	"sync"
	"time"

	"github.com/BaSui01/catalogfed/types"
)

// Source outcome labels reported to a MetricsRecorder.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

// MetricsRecorder receives federation measurements. internal/metrics.Collector
// implements it on Prometheus.
type MetricsRecorder interface {
	RecordFederation(status string, duration time.Duration, sources, results int)
	RecordSourceQuery(sourceID, status string, duration time.Duration)
	RecordProcessingDetail(sourceID string, code types.ErrorCode)
	RecordSourceVeto(sourceID string)
	RecordPluginFailure(stage, plugin string)
}

type nopMetrics struct{}

func (nopMetrics) RecordFederation(string, time.Duration, int, int) {}
func (nopMetrics) RecordSourceQuery(string, string, time.Duration) {}
func (nopMetrics) RecordProcessingDetail(string, types.ErrorCode) {}
func (nopMetrics) RecordSourceVeto(string) {}
func (nopMetrics) RecordPluginFailure(string, string) {}

// DetailsCollector accumulates the processing details, per-source latency and
// per-source hit counts of one federation run. It is safe for concurrent use.
type DetailsCollector struct {
	mu      sync.Mutex
	details *types.ProcessingDetailSet
	elapsed map[string]time.Duration
	hits    map[string]int64
	metrics MetricsRecorder
}

// NewDetailsCollector creates an empty collector. A nil recorder discards
// measurements.
func NewDetailsCollector(metrics MetricsRecorder) *DetailsCollector {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &DetailsCollector{
		details: types.NewProcessingDetailSet(),
		elapsed: make(map[string]time.Duration),
		hits:    make(map[string]int64),
		metrics: metrics,
	}
}

// AddDetail records a detail, dropping structural duplicates.
func (c *DetailsCollector) AddDetail(d types.ProcessingDetail) {
	if c.details.Add(d) && d.HasError() {
		c.metrics.RecordProcessingDetail(d.SourceID, types.GetErrorCode(d.Cause))
	}
}

// AddSourceFailure records a source that returned an error or timed out.
func (c *DetailsCollector) AddSourceFailure(sourceID string, cause error) {
	c.AddDetail(types.NewProcessingDetail(sourceID, cause, nil))
}

// AddSourceDetails records details a source reported about itself. Details
// without a source id are attributed to sourceID.
func (c *DetailsCollector) AddSourceDetails(sourceID string, details []types.ProcessingDetail) {
	for _, d := range details {
		if d.SourceID == "" {
			d.SourceID = sourceID
		}
		c.AddDetail(d)
	}
}

// RecordOutcome stores the latency of a source and reports its status.
func (c *DetailsCollector) RecordOutcome(sourceID, status string, elapsed time.Duration) {
	c.mu.Lock()
	c.elapsed[sourceID] = elapsed
	c.mu.Unlock()
	c.metrics.RecordSourceQuery(sourceID, status, elapsed)
}

// RecordHits stores the hit count a source reported. Unknown counts are
// ignored.
func (c *DetailsCollector) RecordHits(sourceID string, hits int64) {
	if hits < 0 {
		return
	}
	c.mu.Lock()
	c.hits[sourceID] += hits
	c.mu.Unlock()
}

// Details returns the collected detail set.
func (c *DetailsCollector) Details() *types.ProcessingDetailSet {
	return c.details
}

// Elapsed returns a copy of the recorded latencies.
func (c *DetailsCollector) Elapsed() map[string]time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.elapsed)
}

// HitsPerSource returns a copy of the recorded hit counts.
func (c *DetailsCollector) HitsPerSource() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.hits)
}

// ApplyTo writes the collected details and properties into resp.
func (c *DetailsCollector) ApplyTo(resp *types.QueryResponse) {
	resp.ProcessingDetails = c.details

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, d := range c.elapsed {
		resp.Properties[types.ElapsedPropertyKey(id)] = d.Milliseconds()
	}
	resp.Properties[types.PropertyHitsPerSource] = maps.Clone(c.hits)
}
