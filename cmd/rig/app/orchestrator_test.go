package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/wpt-rig/internal/calibration"
	"github.com/roman-kulish/wpt-rig/internal/instrument/driver"
	"github.com/roman-kulish/wpt-rig/internal/instrument/dwf"
	"github.com/roman-kulish/wpt-rig/internal/instrument/sim"
	"github.com/roman-kulish/wpt-rig/internal/measure"
	"github.com/roman-kulish/wpt-rig/internal/sweep"
)

func newTestOrchestrator(t *testing.T, in string, options ...func(*Orchestrator)) (*Orchestrator, *sim.Rig, *bytes.Buffer) {
	t.Helper()

	rig, err := sim.New("test", &sim.Config{Noise: -1})
	require.NoError(t, err)

	config := DefaultConfig()
	out := &bytes.Buffer{}
	options = append([]func(*Orchestrator){WithConsole(strings.NewReader(in), out)}, options...)

	o, err := NewOrchestrator(rig, &config.Rig, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })

	return o, rig, out
}

func TestNewOrchestrator_InvalidRig(t *testing.T) {
	rig, err := sim.New("test", &sim.Config{})
	require.NoError(t, err)

	config := DefaultConfig()
	config.Rig.ForcePin = -1

	_, err = NewOrchestrator(rig, &config.Rig)
	assert.ErrorContains(t, err, "rig.forcePin")
}

func TestOrchestrator_Measure(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, "")

	frame, err := o.Acquire(context.Background(), o.Request(true, true))
	require.NoError(t, err)

	m, err := o.Measure(frame, calibration.ProfileMeasurements)
	require.NoError(t, err)

	assert.Empty(t, m.Undefined())
	assert.InDelta(t, 24, m.SupplyAverage.Value, 1e-9)
	assert.InEpsilon(t, 117e3, m.TXVoltageFrequency.Value, 0.01)
	assert.Equal(t, measure.Volt, m.RXVoltageRMS.Unit)

	require.NotNil(t, m.Force)
	require.NotNil(t, m.DutyCycle)
	assert.InDelta(t, 25, m.DutyCycle.Value, 1e-9)
	assert.Equal(t, measure.Newton, m.Force.Unit)
	assert.InDelta(t, 25*10*1e-3*measure.StandardGravity, m.Force.Value, 1e-9)
}

func TestOrchestrator_MeasureAnalogOnly(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, "")

	frame, err := o.Acquire(context.Background(), o.Request(true, false))
	require.NoError(t, err)

	m, err := o.Measure(frame, calibration.ProfileMeasurements)
	require.NoError(t, err)
	assert.Nil(t, m.Force)
	assert.Len(t, m.Fields(), 15)
}

func TestOrchestrator_MeasureUnknownProfile(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, "")

	frame, err := o.Acquire(context.Background(), o.Request(true, true))
	require.NoError(t, err)

	_, err = o.Measure(frame, "bathroom-scale")
	assert.ErrorIs(t, err, calibration.ErrUnknownProfile)
}

func TestOrchestrator_ForceOnly(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, "")

	frame, err := o.Acquire(context.Background(), o.Request(false, true))
	require.NoError(t, err)

	force, err := o.ForceOnly(frame, calibration.ProfileTransient)
	require.NoError(t, err)
	assert.Equal(t, measure.MilliN, force.Unit)
	assert.InDelta(t, 122.625, force.Value, 1e-9)

	_, err = o.ForceOnly(frame, "missing")
	assert.ErrorIs(t, err, calibration.ErrUnknownProfile)

	frame.Digital = nil
	_, err = o.ForceOnly(frame, calibration.ProfileTransient)
	assert.ErrorIs(t, err, measure.ErrInvalidInput)
}

func TestOrchestrator_Runner(t *testing.T) {
	o, rig, _ := newTestOrchestrator(t, "")

	plan := sweep.Plan{Start: 116e3, Stop: 118e3, Step: 1e3}

	var freqs []float64
	err := o.Runner(calibration.ProfileMeasurements).Run(context.Background(), plan, func(step sweep.Step) error {
		freqs = append(freqs, step.Frequency)
		assert.Nil(t, step.Measurements.Force)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{116e3, 117e3, 118e3}, freqs)
	assert.Equal(t, DefaultDriveFrequency, rig.DriveFrequency())
}

func TestOrchestrator_Confirm(t *testing.T) {
	o, _, out := newTestOrchestrator(t, "\n")

	ok, err := o.Confirm("Press Enter:")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Press Enter: ", out.String())

	ok, err = o.Confirm("Again:")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrchestrator_Path(t *testing.T) {
	dir := t.TempDir()
	o, _, _ := newTestOrchestrator(t, "", WithDataDirectory(dir))

	assert.Equal(t, filepath.Join(dir, "run.csv"), o.Path("run.csv"))
	assert.Equal(t, filepath.Join(dir, "a", "run.csv"), o.Path("a/run.csv"))
	assert.Equal(t, "/tmp/run.csv", o.Path("/tmp/run.csv"))
	assert.Equal(t, "", o.Path(""))
	assert.Equal(t, filepath.Join(dir, "run.csv"), o.Sink("run.csv").Path())

	o, _, _ = newTestOrchestrator(t, "", WithDataDirectory(""))
	assert.Equal(t, "run.csv", o.Path("run.csv"))
}

func TestCreateAcquirer(t *testing.T) {
	acquirer, err := CreateAcquirer(&InstrumentConfig{
		Name:   "bench",
		Type:   InstrumentSimulated,
		Config: &sim.Config{},
	}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &sim.Rig{}, acquirer)
	require.NoError(t, acquirer.Close())

	_, err = CreateAcquirer(&InstrumentConfig{
		Name:   "bench",
		Type:   InstrumentDWF,
		Config: &dwf.Config{Runtime: "dwfcapture-missing-from-path"},
	}, discardLogger())
	var runtimeErr *driver.RuntimeError
	require.ErrorAs(t, err, &runtimeErr)
	assert.Equal(t, "dwfcapture-missing-from-path", runtimeErr.Runtime)

	_, err = CreateAcquirer(&InstrumentConfig{Name: "bench", Type: "rigol"}, discardLogger())
	assert.ErrorContains(t, err, "unknown type 'rigol'")

	_, err = CreateAcquirer(&InstrumentConfig{
		Name:   "bench",
		Type:   InstrumentSimulated,
		Config: &sim.Config{Duty: 3},
	}, discardLogger())
	var configErr *driver.ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "sim.Config.duty", configErr.Field)
}
