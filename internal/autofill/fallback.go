// internal/autofill/fallback.go
package autofill

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DefaultInterestStatement fills long-form fields that had no resolved value.
const DefaultInterestStatement = "I am interested in this position and believe I would be a valuable addition."

// genericValue is typed into controls of unknown class with no value.
const genericValue = "Test"

// FallbackGenerator produces synthetic values for fields the mapper left empty.
// Output shape is fixed per label class; content is random.
type FallbackGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackGenerator returns a generator. A nil rng seeds from the clock.
func NewFallbackGenerator(rng *rand.Rand) *FallbackGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &FallbackGenerator{rng: rng}
}

// Generate returns a plausible value for a field with the given label and widget type.
func (g *FallbackGenerator) Generate(label, widgetType string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "email"):
		return fmt.Sprintf("test%d@example.com", g.between(1000, 9999))
	case strings.Contains(l, "phone"):
		return fmt.Sprintf("+1-555-%d-%d", g.between(100, 999), g.between(1000, 9999))
	case strings.Contains(l, "name"):
		return "Test User"
	case strings.EqualFold(widgetType, "number"):
		return fmt.Sprintf("%d", g.between(1, 10))
	default:
		return "Test Value"
	}
}

// between returns a random integer in [lo, hi].
func (g *FallbackGenerator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}
