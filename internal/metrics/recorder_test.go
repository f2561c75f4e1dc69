package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveGenerateDuration(time.Second)
	r.ObservePublishDuration(time.Second)
	r.IncGenerateResult(ResultSuccess)
	r.IncPublishResult(ResultFail)
	r.IncPagesRendered(5)
	r.IncRemoteAPICall("create_repository", true)
}

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncPublishResult(ResultSuccess)
	r.IncPublishResult(ResultTerminated)
	r.IncPagesRendered(3)
	r.ObservePublishDuration(250 * time.Millisecond)
	r.IncRemoteAPICall("repository_exists", false)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	require.True(t, names["pagepub_publish_results_total"])
	require.True(t, names["pagepub_pages_rendered_total"])
	require.True(t, names["pagepub_publish_duration_seconds"])
	require.True(t, names["pagepub_remote_api_calls_total"])
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.IncPublishResult(ResultSuccess)
	r.IncPagesRendered(1)
	r.ObserveGenerateDuration(time.Second)
}
