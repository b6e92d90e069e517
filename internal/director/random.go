package director

import (
	"math/rand"
	"sync"
)

// Randomizer supplies the randomness used for tie-breaking.
type Randomizer interface {
	// RandomFloat01 returns a value in [0,1).
	RandomFloat01() float64
	// RandomInt returns a value in [min, maxExclusive).
	RandomInt(min, maxExclusive int) int
}

type seededRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededRandom returns a deterministic Randomizer backed by math/rand.
func NewSeededRandom(seed int64) Randomizer {
	return &seededRandom{rng: rand.New(rand.NewSource(seed))}
}

func (r *seededRandom) RandomFloat01() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *seededRandom) RandomInt(min, maxExclusive int) int {
	if maxExclusive <= min {
		return min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rng.Intn(maxExclusive-min)
}
