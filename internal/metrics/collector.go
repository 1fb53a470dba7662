package metrics

// Package metrics provides usage tracking for tool server traffic.
// Collects call counters, latency histograms, and connection state for
// monitoring and observability.

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Collector handles metrics collection for tool calls and the
// supervised connection.
type Collector struct {
	// Prometheus metrics
	totalCalls      *prometheus.CounterVec
	callLatency     *prometheus.HistogramVec
	reconnects      prometheus.Counter
	connectionState *prometheus.GaugeVec
	chatSessions    prometheus.Gauge

	// In-memory stats (for dashboards without a scraper)
	stats   *Stats
	mu      sync.RWMutex
	enabled bool
}

// Stats holds aggregated statistics
type Stats struct {
	TotalCalls   int64            `json:"total_calls"`
	TotalErrors  int64            `json:"total_errors"`
	Reconnects   int64            `json:"reconnects"`
	AvgLatencyMs float64          `json:"avg_latency_ms"`
	CallsByTool  map[string]int64 `json:"calls_by_tool"`
	lastUpdate   time.Time
}

// NewCollector creates a new metrics collector
func NewCollector(enabled bool) *Collector {
	collector := &Collector{
		enabled: enabled,
		stats: &Stats{
			CallsByTool: make(map[string]int64),
			lastUpdate:  time.Now(),
		},
	}

	if enabled {
		collector.totalCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openflux_tool_calls_total",
				Help: "Total number of tool server calls",
			},
			[]string{"tool", "status"},
		)

		collector.callLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openflux_call_latency_seconds",
				Help:    "Tool call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		)

		collector.reconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "openflux_reconnects_total",
				Help: "Total number of tool server reconnects",
			},
		)

		collector.connectionState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "openflux_connection_state",
				Help: "Current tool server connection state (1 for active state)",
			},
			[]string{"state"},
		)

		collector.chatSessions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "openflux_chat_sessions",
				Help: "Number of live chat sessions",
			},
		)

		// Register metrics (ignore duplicate errors for tests)
		_ = prometheus.DefaultRegisterer.Register(collector.totalCalls)
		_ = prometheus.DefaultRegisterer.Register(collector.callLatency)
		_ = prometheus.DefaultRegisterer.Register(collector.reconnects)
		_ = prometheus.DefaultRegisterer.Register(collector.connectionState)
		_ = prometheus.DefaultRegisterer.Register(collector.chatSessions)

		log.Info().Msg("Metrics collector initialized")
	} else {
		log.Info().Msg("Metrics collector disabled")
	}

	return collector
}

// RecordToolCall records one tool server call.
func (c *Collector) RecordToolCall(tool string, success bool, duration time.Duration) {
	if c == nil || !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	latencyMs := duration.Milliseconds()

	c.stats.TotalCalls++
	c.stats.CallsByTool[tool]++
	if !success {
		c.stats.TotalErrors++
	}
	if c.stats.TotalCalls > 0 {
		c.stats.AvgLatencyMs = (c.stats.AvgLatencyMs*float64(c.stats.TotalCalls-1) + float64(latencyMs)) / float64(c.stats.TotalCalls)
	}
	c.stats.lastUpdate = time.Now()

	status := "success"
	if !success {
		status = "error"
	}
	c.totalCalls.WithLabelValues(tool, status).Inc()
	c.callLatency.WithLabelValues(tool).Observe(duration.Seconds())

	log.Debug().
		Str("tool", tool).
		Int64("latency_ms", latencyMs).
		Bool("success", success).
		Msg("Tool call recorded")
}

// RecordReconnect counts one reconnect attempt.
func (c *Collector) RecordReconnect() {
	if c == nil || !c.enabled {
		return
	}
	c.mu.Lock()
	c.stats.Reconnects++
	c.mu.Unlock()
	c.reconnects.Inc()
}

var knownStates = []string{"disconnected", "connecting", "connected", "unhealthy"}

// SetConnectionState marks the given state active and all others
// inactive.
func (c *Collector) SetConnectionState(state string) {
	if c == nil || !c.enabled {
		return
	}
	for _, s := range knownStates {
		val := 0.0
		if s == state {
			val = 1.0
		}
		c.connectionState.WithLabelValues(s).Set(val)
	}
}

// SessionOpened increments the live chat session gauge.
func (c *Collector) SessionOpened() {
	if c == nil || !c.enabled {
		return
	}
	c.chatSessions.Inc()
}

// SessionClosed decrements the live chat session gauge.
func (c *Collector) SessionClosed() {
	if c == nil || !c.enabled {
		return
	}
	c.chatSessions.Dec()
}

// GetStats returns a copy of the current statistics.
func (c *Collector) GetStats() *Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statsCopy := &Stats{
		TotalCalls:   c.stats.TotalCalls,
		TotalErrors:  c.stats.TotalErrors,
		Reconnects:   c.stats.Reconnects,
		AvgLatencyMs: c.stats.AvgLatencyMs,
		CallsByTool:  make(map[string]int64),
		lastUpdate:   c.stats.lastUpdate,
	}
	for k, v := range c.stats.CallsByTool {
		statsCopy.CallsByTool[k] = v
	}
	return statsCopy
}

// Reset clears all in-memory statistics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = &Stats{
		CallsByTool: make(map[string]int64),
		lastUpdate:  time.Now(),
	}
	log.Info().Msg("Metrics statistics reset")
}
