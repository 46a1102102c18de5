package feed

import "github.com/prometheus/client_golang/prometheus"

// Page outcomes, used as the "outcome" label and in logs.
const (
	OutcomeFull             = "full"
	OutcomeExhausted        = "exhausted"
	OutcomeAttemptsExceeded = "attempts_exceeded"
	OutcomeSourceError      = "source_error"
)

// Metrics holds the assembler's prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	pages        *prometheus.CounterVec
	roundTrips   prometheus.Histogram
	filtered     prometheus.Counter
	discarded    prometheus.Counter
	sourceErrors prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "feed",
			Name:      "pages_total",
			Help:      "Unseen pages assembled, by outcome.",
		}, []string{"outcome"}),
		roundTrips: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "haven",
			Subsystem: "feed",
			Name:      "source_round_trips",
			Help:      "Source round trips needed to assemble one page.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "feed",
			Name:      "seen_filtered_total",
			Help:      "Items dropped because the consumer had already seen them.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "feed",
			Name:      "overshoot_discarded_total",
			Help:      "Unseen items fetched past the page size and not returned.",
		}),
		sourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "feed",
			Name:      "source_errors_total",
			Help:      "Source failures absorbed while assembling pages.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.pages, m.roundTrips, m.filtered, m.discarded, m.sourceErrors} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observePage(outcome string, roundTrips, filtered, discarded int) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(outcome).Inc()
	m.roundTrips.Observe(float64(roundTrips))
	m.filtered.Add(float64(filtered))
	m.discarded.Add(float64(discarded))
}

func (m *Metrics) sourceError() {
	if m == nil {
		return
	}
	m.sourceErrors.Inc()
}
