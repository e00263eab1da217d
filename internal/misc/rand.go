package misc

import (
	"math/rand"
	"sync"
	"time"
)

// Rand is the entropy source for request headers and refresh delays.
type Rand interface {
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// NewRand returns a goroutine-safe Rand. A zero seed picks one from the clock.
func NewRand(seed int64) Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// RandomDuration picks a duration in [min, max] with millisecond granularity.
func RandomDuration(rnd Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int((max - min) / time.Millisecond)
	return min + time.Duration(rnd.Intn(span+1))*time.Millisecond
}
