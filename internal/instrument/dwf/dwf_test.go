package dwf

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/instrument/driver"
)

func defaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

func TestConfig_Defaults(t *testing.T) {
	c := defaultConfig()

	require.NoError(t, c.Validate())
	assert.Equal(t, Runtime, c.Runtime)
	assert.Equal(t, 2000, c.LogicSamples())
	assert.Equal(t, TriggerAuto, c.Trigger)
	assert.Equal(t, EdgeRising, c.ForceEdge)
}

func TestConfig_Args(t *testing.T) {
	c := defaultConfig()
	c.Timeout = instrument.NewDuration(2 * time.Second)

	args, err := c.Args(instrument.Request{
		DriveFrequency: 117e3,
		Analog:         true,
		Digital:        true,
		ForcePin:       2,
		Settle:         50 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-d", "0",
		"-clock", "117000", "-clock-pin", "0", "-settle", "50ms",
		"-enable", "1",
		"-analog", "-rate", "2e+07", "-samples", "1000", "-range", "10", "-offset", "0",
		"-trigger", "auto", "-trigger-channel", "0",
		"-digital", "-logic-rate", "1e+06", "-logic-samples", "2000", "-trigger-pin", "2", "-edge", "rising",
		"-timeout", "2s",
	}, args)
}

func TestConfig_ArgsDigitalOnly(t *testing.T) {
	c := defaultConfig()

	args, err := c.Args(instrument.Request{Digital: true, ForcePin: 5})
	require.NoError(t, err)

	assert.NotContains(t, args, "-clock")
	assert.NotContains(t, args, "-analog")
	assert.Contains(t, args, "-digital")
}

func TestConfig_ArgsInvalidRequest(t *testing.T) {
	c := defaultConfig()

	tests := []struct {
		name string
		req  instrument.Request
	}{
		{"nothing to acquire", instrument.Request{}},
		{"force pin out of range", instrument.Request{Digital: true, ForcePin: 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Args(tt.req)
			var cfgErr *driver.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{"buffer too large", func(c *Config) { c.BufferSize = MaxBufferSize + 1 }, "dwf.Config.bufferSize"},
		{"negative range", func(c *Config) { c.Range = -1 }, "dwf.Config.range"},
		{"unknown trigger", func(c *Config) { c.Trigger = "sometimes" }, "dwf.Config.trigger"},
		{"trigger channel", func(c *Config) { c.TriggerChannel = 4 }, "dwf.Config.triggerChannel"},
		{"logic buffer", func(c *Config) { c.ForceFrequency = 10 }, "dwf.Config.logicBufferSize"},
		{"unknown edge", func(c *Config) { c.ForceEdge = "both" }, "dwf.Config.forceEdge"},
		{"shared pins", func(c *Config) { c.ClockPin = 1 }, "dwf.Config.clockPin"},
		{"negative timeout", func(c *Config) { c.Timeout = instrument.NewDuration(-time.Second) }, "dwf.Config.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig()
			tt.modify(&c)

			var cfgErr *driver.ConfigError
			require.True(t, errors.As(c.Validate(), &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestHandler_Parse(t *testing.T) {
	h := handler{config: defaultConfig()}
	var frame instrument.Frame

	lines := []string{
		"R,2e7,1e6",
		"T,2024-05-01T10:00:00.5Z",
		"A,0,2.4,0.1,0.05,1.2",
		"A, 1, 2.41, -0.1, -0.05, 1.1",
		"D,0,0x4",
		"D,1,0",
	}
	for _, line := range lines {
		require.NoError(t, h.Parse(line, &frame), line)
	}

	assert.Equal(t, 2e7, frame.SampleRate)
	assert.Equal(t, 1e6, frame.DigitalRate)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 500_000_000, time.UTC), frame.Timestamp)
	assert.Equal(t, []float64{2.4, 2.41}, frame.Analog[0])
	assert.Equal(t, []float64{0.1, -0.1}, frame.Analog[1])
	assert.Equal(t, []float64{1.2, 1.1}, frame.Analog[3])
	assert.Equal(t, []uint32{4, 0}, frame.Digital)
	assert.NoError(t, frame.Validate(instrument.Request{Analog: true, Digital: true}))
}

func TestHandler_ParseErrors(t *testing.T) {
	h := handler{config: defaultConfig()}

	tests := []struct {
		name string
		line string
	}{
		{"unknown record", "X,1"},
		{"short analog", "A,0,1,2,3"},
		{"bad analog value", "A,0,1,2,x,4"},
		{"out of sequence", "A,3,1,2,3,4"},
		{"bad index", "A,zero,1,2,3,4"},
		{"bad word", "D,0,word"},
		{"word overflow", "D,0,0x1FFFFFFFF"},
		{"bad rate", "R,fast,1e6"},
		{"bad timestamp", "T,yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frame instrument.Frame
			assert.Error(t, h.Parse(tt.line, &frame))
			assert.Empty(t, frame.Analog[0], "partial record must not be appended")
		})
	}
}

func TestHandler_Cmd(t *testing.T) {
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found")
	}

	h, err := New(&Config{Runtime: path})
	require.NoError(t, err)
	assert.Equal(t, Device, h.Device())

	cmd, err := h.Cmd(context.Background(), instrument.Request{Analog: true, DriveFrequency: 115e3})
	require.NoError(t, err)
	assert.Equal(t, path, cmd.Path)
	assert.Contains(t, cmd.Args, "115000")

	_, err = h.Cmd(context.Background(), instrument.Request{})
	assert.Error(t, err)
}

func TestNew_MissingRuntime(t *testing.T) {
	_, err := New(&Config{Runtime: "dwfcapture-does-not-exist"})

	var rtErr *driver.RuntimeError
	assert.True(t, errors.As(err, &rtErr), "expected RuntimeError, got %v", err)
}
