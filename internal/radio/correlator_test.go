package radio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelator_ResolveInvokesOnce(t *testing.T) {
	c := NewCorrelator()
	calls := 0
	c.Register("A", func(error) { calls++ })

	c.Resolve("A", nil)
	c.Resolve("A", nil)

	assert.Equal(t, 1, calls)
	assert.False(t, c.Pending("A"))
}

func TestCorrelator_RegisterSupersedes(t *testing.T) {
	c := NewCorrelator()
	var first, second error
	firstCalled := false
	c.Register("X", func(err error) { firstCalled = true; first = err })
	c.Register("X", func(err error) { second = err })

	want := errors.New("timeout")
	c.Resolve("X", want)

	assert.False(t, firstCalled)
	assert.Nil(t, first)
	assert.Same(t, want, second)
}

func TestCorrelator_ResolveWithoutPendingIsNoop(t *testing.T) {
	c := NewCorrelator()
	c.Resolve("nobody", errors.New("disconnected"))
	assert.Zero(t, c.Len())
}

func TestCorrelator_TakeAll(t *testing.T) {
	c := NewCorrelator()
	c.Register("A", func(error) {})
	c.Register("B", func(error) {})

	all := c.TakeAll()
	assert.Len(t, all, 2)
	assert.Zero(t, c.Len())
}

func TestPowerState(t *testing.T) {
	tests := []struct {
		state     PowerState
		name      string
		available bool
	}{
		{PowerUnknown, "unknown", false},
		{PowerResetting, "resetting", false},
		{PowerUnsupported, "unsupported", false},
		{PowerUnauthorized, "unauthorized", false},
		{PowerOff, "powered_off", false},
		{PowerOn, "powered_on", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.available, tt.state.Available())

			parsed, err := ParsePowerState(tt.name)
			assert.NoError(t, err)
			assert.Equal(t, tt.state, parsed)
		})
	}
}
