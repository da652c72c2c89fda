package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilities_SortedAndDeduplicated(t *testing.T) {
	caps := NewCapabilities(CapMediation, CapBundleOfEnvelopes, CapMediation, CapSeedNode)

	assert.Equal(t, []Capability{CapSeedNode, CapBundleOfEnvelopes, CapMediation}, caps.Tags())
	assert.Equal(t, []int32{3, 10, 12}, caps.Ints())
	assert.Equal(t, 3, caps.Len())
	assert.Equal(t, "[SEED_NODE, BUNDLE_OF_ENVELOPES, MEDIATION]", caps.String())
}

func TestCapabilities_Tags_ReturnsCopy(t *testing.T) {
	caps := NewCapabilities(CapSeedNode)
	tags := caps.Tags()
	tags[0] = CapMediation

	assert.True(t, caps.Contains(CapSeedNode))
	assert.False(t, caps.Contains(CapMediation))
}

func TestCapabilities_ContainsAll(t *testing.T) {
	caps := NewCapabilities(CapTradeStatistics3, CapBundleOfEnvelopes, CapMediation)

	assert.True(t, caps.ContainsAll(NewCapabilities(CapMediation)))
	assert.True(t, caps.ContainsAll(NewCapabilities()))
	assert.False(t, caps.ContainsAll(NewCapabilities(CapMediation, CapRefundAgent)))
	assert.False(t, NewCapabilities().ContainsAll(NewCapabilities(CapMediation)))
}

func TestCapabilities_Equal(t *testing.T) {
	a := NewCapabilities(CapMediation, CapSeedNode)
	b := CapabilitiesFromInts([]int32{3, 12, 12})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(NewCapabilities(CapSeedNode)))
	assert.True(t, NewCapabilities().Equal(Capabilities{}))
}

func TestCapabilities_HasMandatory(t *testing.T) {
	mandatory := DefaultMandatoryCapabilities()

	assert.True(t, NewCapabilities(CapTradeStatistics3, CapSeedNode).HasMandatory(mandatory))
	assert.False(t, NewCapabilities(CapSeedNode, CapBundleOfEnvelopes).HasMandatory(mandatory))
	assert.False(t, NewCapabilities().HasMandatory(mandatory))

	// 任意一个即可
	either := NewCapabilities(CapTradeStatistics2, CapTradeStatistics3)
	assert.True(t, NewCapabilities(CapTradeStatistics2).HasMandatory(either))

	// 没有强制要求
	assert.True(t, NewCapabilities().HasMandatory(Capabilities{}))
}

func TestCapabilities_UnknownTagsPreserved(t *testing.T) {
	caps := CapabilitiesFromInts([]int32{16, 99})

	assert.True(t, caps.Contains(Capability(99)))
	assert.Equal(t, "[TRADE_STATISTICS_3, CAPABILITY_99]", caps.String())
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("bundle_of_envelopes")
	require.NoError(t, err)
	assert.Equal(t, CapBundleOfEnvelopes, c)

	_, err = ParseCapability("NOPE")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}
