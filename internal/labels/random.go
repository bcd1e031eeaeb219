package labels

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"signspeak/internal/domain"
)

// RandomSource draws labels uniformly from the fixed vocabulary.
type RandomSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	signs []string
}

// NewRandomSource seeds from the current time when seed is zero.
func NewRandomSource(seed int64) *RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSource{
		rng:   rand.New(rand.NewSource(seed)),
		signs: domain.Vocabulary(),
	}
}

// Next returns a label with a confidence in [0.70, 0.99].
func (s *RandomSource) Next(ctx context.Context) (domain.Label, error) {
	if err := ctx.Err(); err != nil {
		return domain.Label{}, err
	}

	s.mu.Lock()
	sign := s.signs[s.rng.Intn(len(s.signs))]
	confidence := 0.70 + s.rng.Float64()*0.29
	s.mu.Unlock()

	return domain.Label{Text: sign, Confidence: math.Round(confidence*100) / 100}, nil
}
