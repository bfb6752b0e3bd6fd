// Package metrics is the reporting surface shared by the engine, the stores
// and the notification dispatcher. Deployments plug in their own Client.
package metrics

import "time"

type Tags map[string]string

type Client interface {
	// Counter adds value to a monotonically increasing count, e.g. tasks
	// completed per task type.
	Counter(name string, tags Tags, value int64)

	// Distribution records one sample, e.g. a phase duration in milliseconds.
	Distribution(name string, tags Tags, value float64)

	// Gauge reports the current value, e.g. the identity cache size.
	Gauge(name string, tags Tags, value int64)

	Timing(name string, tags Tags, duration time.Duration)

	// WithTags returns a client that adds tags to every metric.
	WithTags(tags Tags) Client
}
