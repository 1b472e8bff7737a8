package infrastructure

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"convenience/internal/service/checkout/domain"
	"convenience/internal/service/checkout/port"
)

// PrometheusRecorder 实现 port.AllocationRecorder
type PrometheusRecorder struct {
	lines   *prometheus.CounterVec
	units   *prometheus.CounterVec
	answers *prometheus.CounterVec
}

// NewPrometheusRecorder 在 reg 上注册指标，reg 为 nil 时使用默认注册表
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		lines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "allocation_lines_total",
			Help:      "Purchase lines processed, by outcome.",
		}, []string{"outcome"}),
		units: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "allocated_units_total",
			Help:      "Units handed out, by stock pool.",
		}, []string{"pool"}),
		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "confirmations_total",
			Help:      "Confirmation answers, by question kind.",
		}, []string{"kind", "accepted"}),
	}
}

func (r *PrometheusRecorder) RecordLine(outcome string, result domain.AllocationResult) {
	r.lines.WithLabelValues(outcome).Inc()
	if result.PromoUsed > 0 {
		r.units.WithLabelValues("promotion").Add(float64(result.PromoUsed))
	}
	if result.RegularUsed > 0 {
		r.units.WithLabelValues("regular").Add(float64(result.RegularUsed))
	}
	if result.BonusQuantity > 0 {
		r.units.WithLabelValues("bonus").Add(float64(result.BonusQuantity))
	}
}

func (r *PrometheusRecorder) RecordAnswer(kind port.QuestionKind, accepted bool) {
	r.answers.WithLabelValues(string(kind), strconv.FormatBool(accepted)).Inc()
}
