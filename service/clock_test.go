package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(100)
	require.Equal(t, uint64(100), c.Now())

	c.Advance(90 * time.Second)
	require.Equal(t, uint64(190), c.Now())

	c.Set(50)
	require.Equal(t, uint64(50), c.Now())
}

func TestSystemClock(t *testing.T) {
	before := uint64(time.Now().Unix())
	now := SystemClock{}.Now()
	require.GreaterOrEqual(t, now, before)
}
