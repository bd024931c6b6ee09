package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/wpt-rig/internal/instrument"
	"github.com/roman-kulish/wpt-rig/internal/measure"
)

type fakeAcquirer struct {
	mu       sync.Mutex
	requests []instrument.Request
	failAt   float64
}

func (f *fakeAcquirer) Acquire(_ context.Context, req instrument.Request) (*instrument.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.failAt != 0 && req.DriveFrequency == f.failAt {
		return nil, errors.New("scope disconnected")
	}
	return &instrument.Frame{SampleRate: 1}, nil
}

func (f *fakeAcquirer) Close() error {
	return nil
}

func (f *fakeAcquirer) drives() []float64 {
	out := make([]float64, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.DriveFrequency
	}
	return out
}

func measured(*instrument.Frame) (*measure.Measurements, error) {
	return &measure.Measurements{}, nil
}

func TestPlan_Frequencies(t *testing.T) {
	tests := []struct {
		name  string
		plan  Plan
		count int
		first float64
		last  float64
	}{
		{"whole steps include stop", Plan{Start: 115e3, Stop: 120e3, Step: 100}, 51, 115e3, 120e3},
		{"single point", Plan{Start: 117e3, Stop: 117e3, Step: 100}, 1, 117e3, 117e3},
		{"partial step overshoots stop", Plan{Start: 100, Stop: 250, Step: 100}, 3, 100, 300},
		{"one kilohertz steps", Plan{Start: 110e3, Stop: 125e3, Step: 1e3}, 16, 110e3, 125e3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freqs := tt.plan.Frequencies()
			require.Len(t, freqs, tt.count)
			assert.InDelta(t, tt.first, freqs[0], 1e-6)
			assert.InDelta(t, tt.last, freqs[len(freqs)-1], 1e-6)
		})
	}
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
	}{
		{"zero start", Plan{Start: 0, Stop: 1, Step: 1}},
		{"stop below start", Plan{Start: 2, Stop: 1, Step: 1}},
		{"zero step", Plan{Start: 1, Stop: 2}},
		{"negative settle", Plan{Start: 1, Stop: 2, Step: 1, Settle: instrument.NewDuration(-time.Second)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.plan.Validate())
		})
	}

	p := Plan{Start: 115e3, Stop: 120e3, Step: 100}
	assert.NoError(t, p.Validate())
	assert.Equal(t, "115 kHz to 120 kHz in 100 Hz steps", p.String())
}

func TestRunner_Run(t *testing.T) {
	acq := &fakeAcquirer{}
	template := instrument.Request{Analog: true, Digital: true, ForcePin: 2}
	r := NewRunner(acq, template, measured, WithNominalFrequency(117e3))

	plan := Plan{Start: 115e3, Stop: 116e3, Step: 500, Settle: instrument.NewDuration(50 * time.Millisecond)}

	var steps []Step
	err := r.Run(context.Background(), plan, func(s Step) error {
		steps = append(steps, s)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, steps, 3)
	assert.Equal(t, []float64{115e3, 115.5e3, 116e3}, []float64{steps[0].Frequency, steps[1].Frequency, steps[2].Frequency})
	assert.Equal(t, 2, steps[2].Index)
	assert.NotNil(t, steps[0].Measurements)

	// three sweep points then the nominal frequency
	assert.Equal(t, []float64{115e3, 115.5e3, 116e3, 117e3}, acq.drives())
	assert.Equal(t, 50*time.Millisecond, acq.requests[0].Settle)
	assert.True(t, acq.requests[0].Analog)
	assert.False(t, acq.requests[3].Analog)
	assert.Equal(t, 2, acq.requests[3].ForcePin)
}

func TestRunner_StopsOnCallbackError(t *testing.T) {
	acq := &fakeAcquirer{}
	r := NewRunner(acq, instrument.Request{Analog: true}, measured)

	errStop := errors.New("stop")
	err := r.Run(context.Background(), Plan{Start: 1e3, Stop: 5e3, Step: 1e3}, func(s Step) error {
		if s.Index == 1 {
			return errStop
		}
		return nil
	})

	assert.ErrorIs(t, err, errStop)
	assert.Len(t, acq.requests, 2)
}

func TestRunner_AcquisitionError(t *testing.T) {
	acq := &fakeAcquirer{failAt: 2e3}
	r := NewRunner(acq, instrument.Request{Analog: true}, measured, WithNominalFrequency(1e3))

	err := r.Run(context.Background(), Plan{Start: 1e3, Stop: 5e3, Step: 1e3}, func(Step) error { return nil })

	assert.ErrorContains(t, err, "scope disconnected")
	assert.ErrorContains(t, err, "2 kHz")
	assert.Equal(t, []float64{1e3, 2e3, 1e3}, acq.drives())
}

func TestRunner_MeasureError(t *testing.T) {
	acq := &fakeAcquirer{}
	r := NewRunner(acq, instrument.Request{Analog: true}, func(*instrument.Frame) (*measure.Measurements, error) {
		return nil, measure.ErrInvalidInput
	})

	err := r.Run(context.Background(), Plan{Start: 1e3, Stop: 1e3, Step: 1e3}, func(Step) error { return nil })
	assert.ErrorIs(t, err, measure.ErrInvalidInput)
}

func TestRunner_Cancelled(t *testing.T) {
	acq := &fakeAcquirer{}
	r := NewRunner(acq, instrument.Request{Analog: true}, measured, WithNominalFrequency(117e3))

	ctx, cancel := context.WithCancel(context.Background())
	err := r.Run(ctx, Plan{Start: 1e3, Stop: 10e3, Step: 1e3}, func(s Step) error {
		if s.Index == 0 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	// the nominal frequency is restored after cancellation
	assert.Equal(t, []float64{1e3, 117e3}, acq.drives())
}
