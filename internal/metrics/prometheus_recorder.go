package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	generateDuration prom.Histogram
	publishDuration  prom.Histogram
	generateResults  *prom.CounterVec
	publishResults   *prom.CounterVec
	pagesRendered    prom.Counter
	remoteAPICalls   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.generateDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "pagepub",
			Name:      "generate_duration_seconds",
			Help:      "Duration of site generation",
			Buckets:   prom.DefBuckets,
		})
		pr.publishDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "pagepub",
			Name:      "publish_duration_seconds",
			Help:      "Duration of publish attempts",
			Buckets:   prom.DefBuckets,
		})
		pr.generateResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagepub",
			Name:      "generate_results_total",
			Help:      "Generate outcomes by result",
		}, []string{"result"})
		pr.publishResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagepub",
			Name:      "publish_results_total",
			Help:      "Publish outcomes by result",
		}, []string{"result"})
		pr.pagesRendered = prom.NewCounter(prom.CounterOpts{
			Namespace: "pagepub",
			Name:      "pages_rendered_total",
			Help:      "Total pages rendered across generates",
		})
		pr.remoteAPICalls = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pagepub",
			Name:      "remote_api_calls_total",
			Help:      "Remote host API calls by endpoint and result",
		}, []string{"endpoint", "result"})
		reg.MustRegister(pr.generateDuration, pr.publishDuration, pr.generateResults, pr.publishResults, pr.pagesRendered, pr.remoteAPICalls)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveGenerateDuration(d time.Duration) {
	if p == nil || p.generateDuration == nil {
		return
	}
	p.generateDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePublishDuration(d time.Duration) {
	if p == nil || p.publishDuration == nil {
		return
	}
	p.publishDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncGenerateResult(result ResultLabel) {
	if p == nil || p.generateResults == nil {
		return
	}
	p.generateResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncPublishResult(result ResultLabel) {
	if p == nil || p.publishResults == nil {
		return
	}
	p.publishResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncPagesRendered(n int) {
	if p == nil || p.pagesRendered == nil || n <= 0 {
		return
	}
	p.pagesRendered.Add(float64(n))
}

func (p *PrometheusRecorder) IncRemoteAPICall(endpoint string, success bool) {
	if p == nil || p.remoteAPICalls == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.remoteAPICalls.WithLabelValues(endpoint, res).Inc()
}
