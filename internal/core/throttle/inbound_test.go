package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInboundWindow_ExactlyPerSecondAccepted(t *testing.T) {
	cfg := DefaultConfig()
	w := NewInboundWindow(cfg)
	base := time.Unix(1_700_000_000, 0)

	step := 999 * time.Millisecond / time.Duration(cfg.PerSecond)
	for i := 0; i < cfg.PerSecond; i++ {
		assert.False(t, w.Record(base.Add(time.Duration(i)*step)), "frame %d", i)
	}
	assert.True(t, w.Record(base.Add(998*time.Millisecond)))
}

func TestInboundWindow_OldFramesExpire(t *testing.T) {
	cfg := DefaultConfig()
	w := NewInboundWindow(cfg)
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < cfg.PerSecond; i++ {
		w.Record(base)
	}
	assert.False(t, w.Record(base.Add(time.Second)))
}

func TestInboundWindow_TenSecondLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerSecond = 100
	cfg.PerTenSeconds = 10
	base := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name     string
		last     time.Duration
		violated bool
	}{
		{"inside ten seconds", 9500 * time.Millisecond, true},
		{"after ten seconds", 10500 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewInboundWindow(cfg)
			for i := 0; i < cfg.PerTenSeconds; i++ {
				assert.False(t, w.Record(base.Add(time.Duration(i)*time.Second)))
			}
			assert.Equal(t, tt.violated, w.Record(base.Add(tt.last)))
		})
	}
}

func TestInboundPacer(t *testing.T) {
	p := NewInboundPacer(DefaultConfig())
	base := time.Unix(1_700_000_000, 0)

	assert.Zero(t, p.Next(base))
	assert.Equal(t, 20*time.Millisecond, p.Next(base.Add(9*time.Millisecond)))
	assert.Zero(t, p.Next(base.Add(19*time.Millisecond)))
	assert.Zero(t, p.Next(base.Add(100*time.Millisecond)))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.PerSecond = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SendThrottleSleep = -time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxBundleSize = 0
	assert.Error(t, cfg.Validate())
}
