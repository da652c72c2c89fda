package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

func TestModule_ProvidesFactory(t *testing.T) {
	var f *Factory
	app := fxtest.New(t,
		eventloop.Module(),
		Module(),
		fx.Populate(&f),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, f)
	assert.Equal(t, DefaultConfig().PermittedMessageSize, f.Config().PermittedMessageSize)
}

func TestFactory_New(t *testing.T) {
	_, err := NewFactory(DefaultConfig(), Deps{})
	assert.ErrorIs(t, err, ErrNilLoop)

	f, err := NewFactory(testConfig(), Deps{Loop: newLoop(t)})
	require.NoError(t, err)

	client, _ := tcpPair(t)
	c, err := f.New(client, types.DirOutbound, types.NewNodeAddress("bob.onion", 9999), &recorder{})
	require.NoError(t, err)
	assert.Equal(t, types.StateHandshaking, c.State())
	assert.Equal(t, types.DirOutbound, c.Direction())
}
