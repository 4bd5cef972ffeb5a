package model

import (
	"strings"

	"github.com/alchemiser/tradengine/internal/errors"
)

// Symbol is an immutable ticker, 1-10 uppercase characters.
type Symbol string

// NewSymbol validates and normalizes a raw ticker string.
func NewSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if len(s) < 1 || len(s) > 10 {
		return "", errors.Newf(errors.ErrInvalidStrategyConfig, "symbol %q must be 1-10 characters", raw)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", errors.Newf(errors.ErrInvalidStrategyConfig, "symbol %q must be uppercase letters only", raw)
		}
	}
	return Symbol(s), nil
}

func (s Symbol) String() string { return string(s) }

// StrategyID is the enum-like, process-unique identifier of a strategy
// (e.g. "NUCLEAR", "TECL", "KLM").
type StrategyID string

func (s StrategyID) String() string { return string(s) }
