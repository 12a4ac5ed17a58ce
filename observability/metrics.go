package observability

import (
	"github.com/MechWipf/lrpc/config"
	"github.com/hashicorp/go-metrics"
)

var (
	MetricServerConnAcceptCount  = []string{"lrpc", "server", "connection", "accepted", "count"}
	MetricServerConnClosedCount  = []string{"lrpc", "server", "connection", "closed", "count"}
	MetricServerConnErrorCount   = []string{"lrpc", "server", "connection", "error", "count"}
	MetricServerFrameInCount     = []string{"lrpc", "server", "frame", "in", "count"}
	MetricServerFrameInBytes     = []string{"lrpc", "server", "frame", "in", "bytes"}
	MetricServerFrameOutCount    = []string{"lrpc", "server", "frame", "out", "count"}
	MetricServerFrameOutBytes    = []string{"lrpc", "server", "frame", "out", "bytes"}
	MetricServerDroppedBytes     = []string{"lrpc", "server", "frame", "dropped", "bytes"}
	MetricServerInvokeErrorCount = []string{"lrpc", "server", "invoke", "error", "count"}
	MetricServerInvokeLatency    = []string{"lrpc", "server", "invoke", "latency"}
	MetricClientCallCount        = []string{"lrpc", "client", "call", "count"}
	MetricClientCallErrorCount   = []string{"lrpc", "client", "call", "error", "count"}
	MetricClientCallLatency      = []string{"lrpc", "client", "call", "latency"}
)

type TelemetryLabel string

var (
	LabelError    TelemetryLabel = "error"
	LabelPeerAddr TelemetryLabel = "peer_addr"
	LabelService  TelemetryLabel = "service"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

// Metrics owns the process metric sink. When enabled, an in-memory sink
// keeps recent intervals and SIGUSR1 dumps them to stderr.
type Metrics struct {
	// Sink is what components emit to.
	Sink   metrics.MetricSink
	Inmem  *metrics.InmemSink
	signal *metrics.InmemSignal
}

// NewMetrics installs the global go-metrics instance. With metrics disabled
// the sink discards everything.
func NewMetrics(c config.MetricsConfig) (*Metrics, error) {
	if !c.Enable {
		return &Metrics{Sink: &metrics.BlackholeSink{}}, nil
	}
	inm := metrics.NewInmemSink(c.Interval, c.Retain)
	cfg := metrics.DefaultConfig(c.Service)
	cfg.EnableHostname = false
	m, err := metrics.NewGlobal(cfg, inm)
	if err != nil {
		return nil, err
	}
	return &Metrics{Sink: m, Inmem: inm, signal: metrics.DefaultInmemSignal(inm)}, nil
}

// Stop stops the dump signal handler.
func (m *Metrics) Stop() {
	if m.signal != nil {
		m.signal.Stop()
	}
}
