package job

import "errors"

// ErrInvalidDefaultWidth indicates the configured default pool width is not positive.
var ErrInvalidDefaultWidth = errors.New("default pool width must be positive")

// WidthSource identifies how a pool width was resolved.
type WidthSource string

const (
	// WidthSourceExplicit indicates the job supplied a positive width.
	WidthSourceExplicit WidthSource = "explicit"
	// WidthSourceDefault indicates the executor default was used.
	WidthSourceDefault WidthSource = "default"
	// WidthSourceClamped indicates the width was reduced to the number of items.
	WidthSourceClamped WidthSource = "clamped"
)

// PoolPolicy normalises the width of the bounded pool used for a batch's parallel phase.
type PoolPolicy struct {
	defaultWidth int
}

// NewPoolPolicy constructs a PoolPolicy with the provided default width.
func NewPoolPolicy(defaultWidth int) (*PoolPolicy, error) {
	if defaultWidth <= 0 {
		return nil, ErrInvalidDefaultWidth
	}
	return &PoolPolicy{defaultWidth: defaultWidth}, nil
}

// Default returns the configured default width.
func (p *PoolPolicy) Default() int {
	if p == nil {
		return 0
	}
	return p.defaultWidth
}

// PoolDecision captures the outcome of resolving a pool width.
type PoolDecision struct {
	Width     int
	Source    WidthSource
	Requested int
}

// Clamped reports whether the width was reduced to the item count.
func (d PoolDecision) Clamped() bool {
	return d.Source == WidthSourceClamped
}

// Resolve returns min(items, requested or default). The width is never below 1.
func (p *PoolPolicy) Resolve(requested, items int) PoolDecision {
	decision := PoolDecision{Requested: requested, Source: WidthSourceExplicit, Width: requested}
	if requested <= 0 {
		decision.Source = WidthSourceDefault
		decision.Width = p.Default()
	}
	if items > 0 && decision.Width > items {
		decision.Width = items
		decision.Source = WidthSourceClamped
	}
	if decision.Width < 1 {
		decision.Width = 1
	}
	return decision
}
