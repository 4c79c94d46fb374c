package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Settings{Name: "facebook", MaxFailures: 2, Timeout: time.Minute})
	cb.now = func() time.Time { return now }

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.False(t, cb.Open())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.True(t, cb.Open())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Settings{MaxFailures: 1, Timeout: time.Minute})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errBoom })
	assert.True(t, cb.Open())

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.False(t, cb.Open())

	// a failing probe re-opens immediately
	_ = cb.Execute(func() error { return errBoom })
	now = now.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return errBoom })
	assert.True(t, cb.Open())
}

func TestGroupKeepsOneBreakerPerKey(t *testing.T) {
	g := NewGroup(Settings{Name: "publisher", MaxFailures: 1})

	a := g.Get("facebook")
	assert.Same(t, a, g.Get("facebook"))
	assert.NotSame(t, a, g.Get("linkedin"))
	assert.Equal(t, "publisher:facebook", a.Name())
}
