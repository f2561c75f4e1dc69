// Package metrics provides observability hooks for pagepub operations.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics are zero-overhead until a real implementation is
// swapped in (the watch command wires the Prometheus recorder).
package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess    ResultLabel = "success"
	ResultFail       ResultLabel = "fail"
	ResultTerminated ResultLabel = "terminated"
)

// Recorder defines observability hooks for generate and publish operations.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the zero value so NoopRecorder can be embedded freely.
type Recorder interface {
	ObserveGenerateDuration(d time.Duration)
	ObservePublishDuration(d time.Duration)
	IncGenerateResult(result ResultLabel)
	IncPublishResult(result ResultLabel)
	IncPagesRendered(n int)
	IncRemoteAPICall(endpoint string, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveGenerateDuration(time.Duration) {}
func (NoopRecorder) ObservePublishDuration(time.Duration)  {}
func (NoopRecorder) IncGenerateResult(ResultLabel)         {}
func (NoopRecorder) IncPublishResult(ResultLabel)          {}
func (NoopRecorder) IncPagesRendered(int)                  {}
func (NoopRecorder) IncRemoteAPICall(string, bool)         {}
