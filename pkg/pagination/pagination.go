package pagination

import "fmt"

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 50
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 100
	// MaxSkip bounds offset scans.
	MaxSkip = 100000
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Limit int
	Skip  int
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize validates skip and clamps the limit.
func (p Params) Normalize() (Params, error) {
	if p.Skip < 0 {
		return Params{}, fmt.Errorf("skip must be >= 0")
	}
	if p.Skip > MaxSkip {
		return Params{}, fmt.Errorf("skip must be <= %d", MaxSkip)
	}
	return Params{Limit: NormalizeLimit(p.Limit), Skip: p.Skip}, nil
}
