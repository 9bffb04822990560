package metrics

import (
	"github.com/layer-3/tokenauth/ports"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tokenauth"

// Recorder implements ports.Metrics with Prometheus collectors
type Recorder struct {
	outcomes *prometheus.CounterVec
	issued   prometheus.Counter
	revoked  prometheus.Counter
}

var _ ports.Metrics = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Authentication attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens issued by credential exchange",
		}),
		revoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_revoked_total",
			Help:      "Tokens revoked by their owner or by purge",
		}),
	}

	for _, c := range []prometheus.Collector{r.outcomes, r.issued, r.revoked} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveOutcome counts one authentication attempt
func (r *Recorder) ObserveOutcome(strategy string, kind string) {
	r.outcomes.WithLabelValues(strategy, kind).Inc()
}

func (r *Recorder) TokenIssued() {
	r.issued.Inc()
}

func (r *Recorder) TokenRevoked() {
	r.revoked.Inc()
}
