package orders

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const orderNumberPrefix = "ORD_"

// NumberGenerator issues order numbers of the form ORD_<unix-millis>_<8 hex>.
// Within one process the millisecond component strictly increases, so two
// numbers from the same instance never share it; the random suffix separates
// instances.
type NumberGenerator struct {
	mu     sync.Mutex
	now    func() time.Time
	lastMS int64
}

func NewNumberGenerator(now func() time.Time) *NumberGenerator {
	if now == nil {
		now = time.Now
	}
	return &NumberGenerator{now: now}
}

func (g *NumberGenerator) Next() string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.lastMS {
		ms = g.lastMS + 1
	}
	g.lastMS = ms
	g.mu.Unlock()

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%s", orderNumberPrefix, ms, suffix)
}
