package randutil

import (
	"math/rand/v2"
	"sync"
)

// Rand is the subset of *rand.Rand used across the project. Implementations must be safe for
// concurrent use.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

func Global() Rand {
	return globalRand{}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func NewSeeded(seed uint64) Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func Pick[T any](r Rand, items []T) T {
	if len(items) == 0 {
		panic("pick from empty slice")
	}
	return items[r.IntN(len(items))]
}

// Shuffle permutes items in place with the Fisher-Yates algorithm.
func Shuffle[T any](r Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
