package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamGate_ActiveTracking(t *testing.T) {
	g := NewStreamGate()

	assert.False(t, g.IsActive("rec-1"))
	g.Begin("rec-1")
	assert.True(t, g.IsActive("rec-1"))
	assert.False(t, g.IsActive("rec-2"))
	g.End("rec-1")
	assert.False(t, g.IsActive("rec-1"))
}

func TestStreamGate_OnEndRunsImmediatelyWhenInactive(t *testing.T) {
	g := NewStreamGate()

	ran := false
	g.OnEnd("rec-1", func() { ran = true })
	assert.True(t, ran, "a callback for an inactive id must not wait forever")
}

func TestStreamGate_OnEndDeferredUntilEnd(t *testing.T) {
	g := NewStreamGate()

	var order []string
	g.Begin("rec-1")
	g.OnEnd("rec-1", func() { order = append(order, "first") })
	g.OnEnd("rec-1", func() { order = append(order, "second") })
	assert.Empty(t, order)

	g.End("rec-1")
	assert.Equal(t, []string{"first", "second"}, order)

	// Callbacks fire once; a second End finds none.
	g.End("rec-1")
	assert.Len(t, order, 2)
}

func TestStreamGate_CallbackMayReenter(t *testing.T) {
	g := NewStreamGate()

	g.Begin("rec-1")
	var sawActive bool
	g.OnEnd("rec-1", func() {
		// Runs outside the lock, so gate calls are safe here.
		sawActive = g.IsActive("rec-1")
	})
	g.End("rec-1")
	assert.False(t, sawActive)
}
