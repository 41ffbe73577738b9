package sources

import "time"

// MetricsRecorder receives backend-level measurements from the bundled
// sources. internal/metrics.Collector implements it.
type MetricsRecorder interface {
	RecordUpstreamRequest(sourceID string, status int, duration time.Duration)
	RecordDBQuery(database, operation string, duration time.Duration)
	RecordDBConnections(database string, open, idle int)
	RecordCacheLookup(sourceID string, hit bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordUpstreamRequest(string, int, time.Duration) {}
func (nopRecorder) RecordDBQuery(string, string, time.Duration)     {}
func (nopRecorder) RecordDBConnections(string, int, int)            {}
func (nopRecorder) RecordCacheLookup(string, bool)                  {}

func recorderOrNop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return nopRecorder{}
	}
	return m
}
