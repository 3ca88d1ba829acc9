package timeline

import (
	"math/rand/v2"
	"sync"
)

// TrimPolicy decides whether an append should archive the overflow beyond
// capacity. overflow is always positive when called.
type TrimPolicy interface {
	ShouldTrim(overflow int) bool
}

// ProbabilisticTrim trims with a fixed chance per append, and always once the
// overflow exceeds MaxSlack. Under sustained streams the buffer stays within
// capacity+MaxSlack while most appends skip the trim.
type ProbabilisticTrim struct {
	Probability float64
	MaxSlack    int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProbabilisticTrim returns a policy backed by a randomly seeded source.
func NewProbabilisticTrim(probability float64, maxSlack int) *ProbabilisticTrim {
	return &ProbabilisticTrim{
		Probability: probability,
		MaxSlack:    maxSlack,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewSeededTrim returns a policy with a deterministic source.
func NewSeededTrim(probability float64, maxSlack int, seed uint64) *ProbabilisticTrim {
	return &ProbabilisticTrim{
		Probability: probability,
		MaxSlack:    maxSlack,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (p *ProbabilisticTrim) ShouldTrim(overflow int) bool {
	if overflow > p.MaxSlack {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p.rng.Float64() < p.Probability
}

type trimFunc func(overflow int) bool

func (f trimFunc) ShouldTrim(overflow int) bool { return f(overflow) }

// AlwaysTrim keeps the buffer at capacity on every append.
var AlwaysTrim TrimPolicy = trimFunc(func(int) bool { return true })

// NeverTrim disables archival trimming.
var NeverTrim TrimPolicy = trimFunc(func(int) bool { return false })
