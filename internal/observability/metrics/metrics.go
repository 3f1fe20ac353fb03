package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgentMetrics exposes counters/histograms for the conversation flow.
type AgentMetrics struct {
	toolCallsTotal   *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	otpTotal         *prometheus.CounterVec
}

func NewAgentMetrics(reg prometheus.Registerer) *AgentMetrics {
	m := &AgentMetrics{
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool calls by tool name and outcome",
		}, []string{"tool", "status"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "agent",
			Name:      "fsm_transitions_total",
			Help:      "Total conversation state transitions",
		}, []string{"from", "to"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "agent",
			Name:      "gateway_latency_seconds",
			Help:      "Latency of calendar platform calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		otpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "agent",
			Name:      "otp_events_total",
			Help:      "Total OTP issues, resends, and verification outcomes",
		}, []string{"event"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.toolCallsTotal, m.transitionsTotal, m.gatewayLatency, m.otpTotal)
	return m
}

func (m *AgentMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *AgentMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *AgentMetrics) ObserveGatewayLatency(op string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(op).Observe(seconds)
}

func (m *AgentMetrics) ObserveOTP(event string) {
	if m == nil {
		return
	}
	m.otpTotal.WithLabelValues(event).Inc()
}
