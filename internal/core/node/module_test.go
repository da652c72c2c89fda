package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-onionp2p/internal/core/connection"
	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
)

func TestModule_Lifecycle(t *testing.T) {
	var n *Node
	app := fxtest.New(t,
		fx.Provide(func() interfaces.Transport { return newLocalhost() }),
		eventloop.Module(),
		connection.Module(),
		Module(),
		fx.Populate(&n),
	)
	app.RequireStart()
	require.NotNil(t, n)

	require.Eventually(t, func() bool {
		_, ok := n.NodeAddress()
		return ok
	}, waitFor, tick)

	app.RequireStop()
	assert.ErrorIs(t, n.Start(), ErrClosed)
}
