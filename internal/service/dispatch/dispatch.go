// Package dispatch assigns a rider and delivery estimate to a new order.
package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/emmy19999/bingham-bites/internal/service/models/order"
)

const (
	baseMinutes   = 25
	spreadMinutes = 15
	phonePrefix   = "080"
)

// Riders is the fixed pool riders are drawn from.
var Riders = []string{
	"Adamu M.",
	"Chinedu O.",
	"Ibrahim K.",
	"Grace A.",
	"Emeka N.",
}

// Assignment is the dispatch decision for one order.
type Assignment struct {
	Rider            order.Rider
	EstimatedMinutes int
}

// Assigner picks a rider. The simulated implementation can be replaced by a
// real dispatch integration.
type Assigner interface {
	Assign(ctx context.Context, extraMinutes int) (Assignment, error)
}

// Simulated draws from Riders at random.
type Simulated struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// option is a function that configures the Simulated assigner.
type option func(*Simulated)

// WithSeed makes assignments reproducible.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSeed(seed1, seed2 uint64) option {
	return func(s *Simulated) {
		s.rnd = rand.New(rand.NewPCG(seed1, seed2))
	}
}

func NewSimulated(opts ...option) *Simulated {
	s := &Simulated{
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Assign returns a rider, an 11-digit phone starting with 080 and an ETA of
// 25 to 39 minutes plus the destination's extra minutes.
func (s *Simulated) Assign(ctx context.Context, extraMinutes int) (Assignment, error) {
	if err := ctx.Err(); err != nil {
		return Assignment{}, err
	}
	if extraMinutes < 0 {
		extraMinutes = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := Riders[s.rnd.IntN(len(Riders))]
	phone := fmt.Sprintf("%s%08d", phonePrefix, 10_000_000+s.rnd.IntN(90_000_000))

	return Assignment{
		Rider:            order.Rider{Name: name, Phone: phone},
		EstimatedMinutes: baseMinutes + s.rnd.IntN(spreadMinutes) + extraMinutes,
	}, nil
}
