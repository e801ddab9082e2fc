package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_Doubles(t *testing.T) {
	base := time.Second

	assert.Equal(t, 1*time.Second, Delay(base, 1))
	assert.Equal(t, 2*time.Second, Delay(base, 2))
	assert.Equal(t, 4*time.Second, Delay(base, 3))
	assert.Equal(t, 8*time.Second, Delay(base, 4))
	assert.Equal(t, 16*time.Second, Delay(base, 5))
}

func TestDelay_Cap(t *testing.T) {
	base := time.Second

	assert.Equal(t, 30*time.Second, Delay(base, 6))
	assert.Equal(t, 30*time.Second, Delay(base, 20))
	assert.Equal(t, 30*time.Second, Delay(base, 1000))
}

func TestDelay_Monotonic(t *testing.T) {
	base := 250 * time.Millisecond

	prev := time.Duration(0)
	for n := 1; n <= 12; n++ {
		d := Delay(base, n)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, MaxDelay)
		prev = d
	}
}

func TestDelay_Defaults(t *testing.T) {
	// Zero base and out-of-range attempts fall back to sane values.
	assert.Equal(t, time.Second, Delay(0, 1))
	assert.Equal(t, time.Second, Delay(time.Second, 0))
	assert.Equal(t, time.Second, Delay(time.Second, -3))
}
