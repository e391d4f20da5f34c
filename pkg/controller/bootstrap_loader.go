package controller

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/clockworkgo/controller/pkg/schedcore"
)

// LoadBootstrap reads a ClockworkState JSON fixture from path and validates
// it (spec section 6 "Bootstrap"). In a full deployment this payload is
// what the out-of-scope model-compilation pipeline and worker fleet report
// to the controller on startup; this repo reads it from disk the way the
// teacher's config.Load reads flat env vars, just for a structured
// document instead of scalars.
func LoadBootstrap(path string) (*schedcore.ClockworkState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("controller: reading bootstrap state: %w", err)
	}
	var state schedcore.ClockworkState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("controller: parsing bootstrap state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("controller: invalid bootstrap state: %w", err)
	}
	return &state, nil
}
