package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-onionp2p/pkg/types"
)

func TestMetrics_Counters(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.MessageReceived("Ping", 10)
	m.MessageReceived("Ping", 12)
	m.MessageSent("OfferMessage")
	m.BytesSent(100)
	m.RuleViolation(types.ViolationThrottleLimitExceeded)
	m.BundleFlushed(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesReceived.WithLabelValues("Ping")))
	assert.Equal(t, 22.0, testutil.ToFloat64(m.bytesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("OfferMessage")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.violations.WithLabelValues("THROTTLE_LIMIT_EXCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bundlesFlushed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.bundledEnvelopes))
}

func TestMetrics_ConnectionGauge(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ConnectionOpened(types.DirInbound)
	m.ConnectionOpened(types.DirInbound)
	m.ConnectionOpened(types.DirOutbound)
	m.ConnectionClosed(types.DirInbound, types.CloseAppShutDown)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("inbound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("outbound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.disconnects.WithLabelValues("APP_SHUT_DOWN")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageReceived("Ping", 1)
		m.MessageSent("Ping")
		m.BytesSent(1)
		m.RuleViolation(types.ViolationPeerBanned)
		m.BundleFlushed(2)
		m.ConnectionOpened(types.DirInbound)
		m.ConnectionClosed(types.DirInbound, types.CloseReset)
	})
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestModule_Provides(t *testing.T) {
	reg := prometheus.NewRegistry()
	var m *Metrics
	app := fxtest.New(t,
		Module,
		fx.Provide(func() prometheus.Registerer { return reg }),
		fx.Populate(&m),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, m)
	m.MessageSent("Ping")
	count, err := testutil.GatherAndCount(reg, "onionp2p_messages_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestModule_Disabled(t *testing.T) {
	var m *Metrics
	app := fxtest.New(t,
		Module,
		fx.Supply(&Config{Enabled: false}),
		fx.Populate(&m),
	)
	defer app.RequireStart().RequireStop()
	assert.Nil(t, m)
}
