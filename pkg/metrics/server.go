package metrics

import "github.com/prometheus/client_golang/prometheus"

// ServerMetrics tracks the mover's connection and request activity.
//
// A nil *ServerMetrics is valid and all methods are no-ops, so callers never
// have to branch on whether metrics are enabled.
type ServerMetrics struct {
	connectionsAccepted prometheus.Counter
	requestsTotal       *prometheus.CounterVec
	responsesTotal      *prometheus.CounterVec
	requestBytes        prometheus.Counter
	responseBytes       prometheus.Counter
	batchReadsTotal     prometheus.Counter
	poolExhausted       prometheus.Counter
}

// NewServerMetrics creates server metrics registered with the global
// registry. Returns nil (no-op) when the registry is not initialized.
func NewServerMetrics() *ServerMetrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}

	m := &ServerMetrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mover_connections_accepted_total",
			Help: "Connections accepted on the Unix socket.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mover_requests_total",
			Help: "Requests decoded, by operation.",
		}, []string{"op"}),
		responsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mover_responses_total",
			Help: "Responses sent, by status.",
		}, []string{"status"}),
		requestBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mover_request_bytes_total",
			Help: "Request payload bytes received.",
		}),
		responseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mover_response_bytes_total",
			Help: "Response payload bytes sent.",
		}),
		batchReadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mover_batch_reads_total",
			Help: "Individual reads executed through BATCH operations.",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mover_buffer_pool_exhausted_total",
			Help: "Requests rejected because no pool buffer was available.",
		}),
	}

	reg.MustRegister(
		m.connectionsAccepted,
		m.requestsTotal,
		m.responsesTotal,
		m.requestBytes,
		m.responseBytes,
		m.batchReadsTotal,
		m.poolExhausted,
	)

	return m
}

// ConnectionAccepted records an accepted connection.
func (m *ServerMetrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

// RequestDecoded records a decoded request and its payload size.
func (m *ServerMetrics) RequestDecoded(op string, payloadBytes int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(op).Inc()
	m.requestBytes.Add(float64(payloadBytes))
}

// ResponseSent records a sent response and its payload size.
func (m *ServerMetrics) ResponseSent(status string, payloadBytes int) {
	if m == nil {
		return
	}
	m.responsesTotal.WithLabelValues(status).Inc()
	m.responseBytes.Add(float64(payloadBytes))
}

// BatchReads records n reads executed as part of one batch.
func (m *ServerMetrics) BatchReads(n int) {
	if m == nil {
		return
	}
	m.batchReadsTotal.Add(float64(n))
}

// PoolExhausted records a request turned away for lack of buffers.
func (m *ServerMetrics) PoolExhausted() {
	if m == nil {
		return
	}
	m.poolExhausted.Inc()
}
