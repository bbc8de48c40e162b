package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Recorder backed by Prometheus.
type PrometheusCollector struct {
	routes         *prometheus.CounterVec
	resFailures    *prometheus.CounterVec
	violations     *prometheus.CounterVec
	promotions     prometheus.Counter
	filled         prometheus.Counter
	removed        prometheus.Counter
	plans          *prometheus.CounterVec
	planCache      *prometheus.CounterVec
	sessionsActive prometheus.Gauge
}

var _ Recorder = (*PrometheusCollector)(nil)

// NewPrometheus creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer if nil). namespace defaults to "screwsort".
func NewPrometheus(reg prometheus.Registerer, namespace string) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "screwsort"
	}

	p := &PrometheusCollector{
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "resolutions_total",
			Help:      "Destination router outcomes by kind (container, hole, none).",
		}, []string{"outcome"}),
		resFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "reservation_failures_total",
			Help:      "Reservations released because the target became invalid before commit.",
		}, []string{"reason"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "invariant_violations_total",
			Help:      "Slot operations refused because they would break a board invariant.",
		}, []string{"op"}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "promotions_total",
			Help:      "Items transferred from a holding hole into a container.",
		}),
		filled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "containers_filled_total",
			Help:      "Containers that became full.",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "containers_removed_total",
			Help:      "Full containers removed from the live set.",
		}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "plans_total",
			Help:      "Balance plans computed by result (valid, lenient, invalid).",
		}, []string{"result"}),
		planCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "plan_cache_lookups_total",
			Help:      "Plan cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions_active",
			Help:      "Level sessions currently attached to a connection.",
		}),
	}

	for _, c := range []prometheus.Collector{
		p.routes, p.resFailures, p.violations, p.promotions, p.filled,
		p.removed, p.plans, p.planCache, p.sessionsActive,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusCollector) RouteResolved(outcome string) {
	p.routes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) ReservationFailed(reason string) {
	p.resFailures.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) InvariantViolation(op string) {
	p.violations.WithLabelValues(op).Inc()
}

func (p *PrometheusCollector) ItemPromoted()    { p.promotions.Inc() }
func (p *PrometheusCollector) ContainerFilled() { p.filled.Inc() }
func (p *PrometheusCollector) ContainerRemoved() {
	p.removed.Inc()
}

func (p *PrometheusCollector) PlanComputed(result string) {
	p.plans.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) PlanCache(result string) {
	p.planCache.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) SessionsActive(n int) {
	p.sessionsActive.Set(float64(n))
}
