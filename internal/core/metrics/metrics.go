package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-onionp2p/pkg/types"
)

const namespace = "onionp2p"

// Metrics 连接层指标
type Metrics struct {
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	bytesReceived    prometheus.Counter
	bytesSent        prometheus.Counter
	violations       *prometheus.CounterVec
	disconnects      *prometheus.CounterVec
	bundlesFlushed   prometheus.Counter
	bundledEnvelopes prometheus.Counter
	connections      *prometheus.GaugeVec
}

// New 创建指标并注册到 reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Envelopes received, by message type.",
		}, []string{"type"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Envelopes written to the wire, by message type.",
		}, []string{"type"}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Frame bytes received including length prefixes.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Frame bytes sent including length prefixes.",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_violations_total",
			Help:      "Rule violations reported against peers, by kind.",
		}, []string{"kind"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Closed connections, by close reason.",
		}, []string{"reason"}),
		bundlesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_flushed_total",
			Help:      "Coalesced outbound bundles written to the wire.",
		}),
		bundledEnvelopes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundled_envelopes_total",
			Help:      "Envelopes sent inside coalesced bundles.",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open connections, by direction.",
		}, []string{"direction"}),
	}

	for _, c := range []prometheus.Collector{
		m.messagesReceived, m.messagesSent, m.bytesReceived, m.bytesSent,
		m.violations, m.disconnects, m.bundlesFlushed, m.bundledEnvelopes, m.connections,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MessageReceived 记录收到一帧
func (m *Metrics) MessageReceived(typeName string, frameBytes int) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(typeName).Inc()
	m.bytesReceived.Add(float64(frameBytes))
}

// MessageSent 记录一条消息写出
func (m *Metrics) MessageSent(typeName string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(typeName).Inc()
}

// BytesSent 记录写出的帧字节数
func (m *Metrics) BytesSent(n int) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(n))
}

// RuleViolation 记录一次规则违例
func (m *Metrics) RuleViolation(kind types.RuleViolation) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(kind.String()).Inc()
}

// BundleFlushed 记录一个合并 Bundle 写出
func (m *Metrics) BundleFlushed(size int) {
	if m == nil {
		return
	}
	m.bundlesFlushed.Inc()
	m.bundledEnvelopes.Add(float64(size))
}

// ConnectionOpened 记录连接建立
func (m *Metrics) ConnectionOpened(dir types.Direction) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(dir.String()).Inc()
}

// ConnectionClosed 记录连接关闭
func (m *Metrics) ConnectionClosed(dir types.Direction, reason types.CloseConnectionReason) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(dir.String()).Dec()
	m.disconnects.WithLabelValues(reason.String()).Inc()
}
