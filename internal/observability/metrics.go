package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	iterationsTotal  *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolTimeoutsTotal     *prometheus.CounterVec

	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram

	memoryEntriesTotal  prometheus.Gauge
	memoryWriteDuration prometheus.Histogram

	approvalsTotal  *prometheus.CounterVec
	pendingApproval prometheus.Gauge

	queueDepth   *prometheus.GaugeVec
	queueWait    *prometheus.HistogramVec
	enqueueTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by agent and terminal status.",
				},
				[]string{"agent", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by agent.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			iterationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_iterations_total",
					Help: "Total model-call iterations by agent.",
				},
				[]string{"agent"},
			),
			escalationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_escalations_total",
					Help: "Total escalated runs by agent.",
				},
				[]string{"agent"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolTimeoutsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_timeouts_total",
					Help: "Total tool executions aborted on timeout by tool.",
				},
				[]string{"tool"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryEntriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_entries_total",
					Help: "Total memory entries held across sessions.",
				},
			),
			memoryWriteDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_write_duration_seconds",
					Help:    "Memory write duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			approvalsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "approvals_total",
					Help: "Total approval requests by resolution status.",
				},
				[]string{"status"},
			),
			pendingApproval: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "approvals_pending",
					Help: "Currently pending approval requests.",
				},
			),
			queueDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "run_queue_depth",
					Help: "Current run queue depth by lane.",
				},
				[]string{"lane"},
			),
			queueWait: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "run_queue_wait_seconds",
					Help:    "Time a run waits in its lane before executing.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "run_queue_enqueue_total",
					Help: "Total run enqueues by lane.",
				},
				[]string{"lane"},
			),
		}

		prometheus.MustRegister(
			m.agentRunTotal,
			m.agentRunDuration,
			m.iterationsTotal,
			m.escalationsTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolTimeoutsTotal,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.memoryEntriesTotal,
			m.memoryWriteDuration,
			m.approvalsTotal,
			m.pendingApproval,
			m.queueDepth,
			m.queueWait,
			m.enqueueTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler exposes the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordAgentRun(agent, status string, duration time.Duration) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(agent, status).Inc()
	m.agentRunDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

func RecordIteration(agent string) {
	getMetrics().iterationsTotal.WithLabelValues(agent).Inc()
}

func RecordEscalation(agent string) {
	getMetrics().escalationsTotal.WithLabelValues(agent).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordToolTimeout(tool string) {
	getMetrics().toolTimeoutsTotal.WithLabelValues(tool).Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

func SetMemoryEntries(total int) {
	getMetrics().memoryEntriesTotal.Set(float64(total))
}

func RecordMemoryWrite(duration time.Duration) {
	getMetrics().memoryWriteDuration.Observe(duration.Seconds())
}

func RecordApproval(status string) {
	getMetrics().approvalsTotal.WithLabelValues(status).Inc()
}

func SetPendingApprovals(count int) {
	getMetrics().pendingApproval.Set(float64(count))
}

func RecordQueueEnqueue(lane string, depth int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueDepth.WithLabelValues(lane).Set(float64(depth))
}

func RecordQueueWait(lane string, wait time.Duration, depth int) {
	m := getMetrics()
	m.queueWait.WithLabelValues(lane).Observe(wait.Seconds())
	m.queueDepth.WithLabelValues(lane).Set(float64(depth))
}
