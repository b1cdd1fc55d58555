package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsOptions configures the lifecycle metrics collectors.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// Metrics exposes Prometheus collectors for the authorization request lifecycle.
type Metrics struct {
	RequestsCreated  prometheus.Counter
	RequestsDecided  *prometheus.CounterVec
	RequestsExpired  prometheus.Counter
	NotifyFailures   prometheus.Counter
	DurableWriteLags prometheus.Counter
}

// NewMetrics constructs and registers the lifecycle collectors.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "approval"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "requests_created_total",
		Help:      "Total number of authorization requests created.",
	})
	if err := register(reg, &created); err != nil {
		return nil, err
	}

	decided := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "requests_decided_total",
		Help:      "Total number of authorization requests decided, partitioned by decision.",
	}, []string{"decision"})
	if err := registerVec(reg, &decided); err != nil {
		return nil, err
	}

	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "requests_expired_total",
		Help:      "Total number of authorization requests expired by the sweeper.",
	})
	if err := register(reg, &expired); err != nil {
		return nil, err
	}

	notifyFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "notify_failures_total",
		Help:      "Total number of failed approval prompt deliveries.",
	})
	if err := register(reg, &notifyFailures); err != nil {
		return nil, err
	}

	durableLags := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "durable_write_retries_exhausted_total",
		Help:      "Total number of durable store writes abandoned after exhausting retries.",
	})
	if err := register(reg, &durableLags); err != nil {
		return nil, err
	}

	return &Metrics{
		RequestsCreated:  created,
		RequestsDecided:  decided,
		RequestsExpired:  expired,
		NotifyFailures:   notifyFailures,
		DurableWriteLags: durableLags,
	}, nil
}

func register(reg prometheus.Registerer, c *prometheus.Counter) error {
	if err := reg.Register(*c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				*c = existing
				return nil
			}
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}

func registerVec(reg prometheus.Registerer, v **prometheus.CounterVec) error {
	if err := reg.Register(*v); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				*v = existing
				return nil
			}
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}
