package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the evaluation daemon.
type Metrics struct {
	registry       *prometheus.Registry
	WorkflowRuns   *prometheus.CounterVec
	WorkflowTurns  *prometheus.HistogramVec
	RunDuration    *prometheus.HistogramVec
	ToolCalls      *prometheus.CounterVec
	PipelineCalls  *prometheus.CounterVec
	ModelFailures  *prometheus.CounterVec
	ActiveStreams  *prometheus.GaugeVec
	TransportErrs  *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with daemon collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbstudio_workflow_runs_total",
		Help: "Workflow runs by final decision and termination state",
	}, []string{"decision", "termination"})

	turns := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rbstudio_workflow_turns",
		Help:    "Turns executed per workflow run",
		Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
	}, []string{"termination"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rbstudio_workflow_duration_seconds",
		Help:    "Workflow run duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"termination"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbstudio_tool_calls_total",
		Help: "Capability invocations by tool name",
	}, []string{"tool"})

	pipelineCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbstudio_pipeline_calls_total",
		Help: "Pipeline requests by pipeline and outcome",
	}, []string{"pipeline", "outcome"})

	modelFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbstudio_model_failures_total",
		Help: "Model failures by role and model",
	}, []string{"role", "model"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rbstudio_transport_active_streams",
		Help: "Active streaming responses by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rbstudio_transport_errors_total",
		Help: "Transport-level errors by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(runs, turns, durs, toolCalls, pipelineCalls, modelFailures, active, trErrors)

	return &Metrics{
		registry:      reg,
		WorkflowRuns:  runs,
		WorkflowTurns: turns,
		RunDuration:   durs,
		ToolCalls:     toolCalls,
		PipelineCalls: pipelineCalls,
		ModelFailures: modelFailures,
		ActiveStreams: active,
		TransportErrs: trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordWorkflowRun records decision, termination, turns, and duration.
func (m *Metrics) RecordWorkflowRun(decision, termination string, turns int, duration time.Duration) {
	if m == nil {
		return
	}
	if decision == "" {
		decision = "unknown"
	}
	if termination == "" {
		termination = "unknown"
	}
	m.WorkflowRuns.WithLabelValues(decision, termination).Inc()
	m.WorkflowTurns.WithLabelValues(termination).Observe(float64(turns))
	m.RunDuration.WithLabelValues(termination).Observe(duration.Seconds())
}

// RecordToolCall records one capability invocation.
func (m *Metrics) RecordToolCall(tool string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool).Inc()
}

// RecordPipelineCall records a generator/verifier/evaluator request.
func (m *Metrics) RecordPipelineCall(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.PipelineCalls.WithLabelValues(pipeline, outcome).Inc()
}

// RecordModelFailure records an upstream model failure.
func (m *Metrics) RecordModelFailure(role, model string) {
	if m == nil {
		return
	}
	m.ModelFailures.WithLabelValues(role, model).Inc()
}

// IncActiveStreams increments the active stream gauge.
func (m *Metrics) IncActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Inc()
}

// DecActiveStreams decrements the active stream gauge.
func (m *Metrics) DecActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
