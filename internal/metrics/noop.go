package metrics

import (
	"time"

	m "github.com/adjutant-go/adjutant/metrics"
)

// noopMetricsClient discards everything. It is the default for engines,
// stores and dispatchers that were not given a client.
type noopMetricsClient struct{}

var _ m.Client = (*noopMetricsClient)(nil)

func NewNoopMetricsClient() *noopMetricsClient {
	return &noopMetricsClient{}
}

func (*noopMetricsClient) Counter(string, m.Tags, int64) {}

func (*noopMetricsClient) Distribution(string, m.Tags, float64) {}

func (*noopMetricsClient) Gauge(string, m.Tags, int64) {}

func (*noopMetricsClient) Timing(string, m.Tags, time.Duration) {}

func (nmc *noopMetricsClient) WithTags(m.Tags) m.Client {
	return nmc
}
