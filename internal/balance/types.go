// Package balance pre-computes level plans whose item counts guarantee a
// perfect ending: every container exactly full and every holding hole empty.
package balance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gravitas-games/screwsort/internal/planner"
	"github.com/gravitas-games/screwsort/pkg/models"
)

// ErrPlanInvalid is wrapped by ValidationError.
var ErrPlanInvalid = errors.New("balance: plan failed validation")

// Difficulty describes a level on two independent axes plus its layer count.
type Difficulty struct {
	Level      int     `json:"level"`
	Layers     int     `json:"layers"`
	Complexity float64 `json:"complexity"` // structural complexity, 0..1
	Density    float64 `json:"density"`    // items per shape, 0..1
}

// Reason is a diagnostic tag on a scheduled replacement. It never drives
// control flow.
type Reason string

const (
	ReasonPreventOverflow     Reason = "prevent overflow-pool exhaustion"
	ReasonColorReoptimization Reason = "color re-optimization"
	ReasonCompletionPrep      Reason = "level-completion preparation"
	ReasonBalanceRequirement  Reason = "balance requirement"
)

// Replacement retargets containers once Threshold items have been collected.
type Replacement struct {
	Threshold int            `json:"threshold"`
	Colors    []models.Color `json:"colors"`
	Reason    Reason         `json:"reason"`
}

// FinalState is the projected end of the level.
type FinalState struct {
	FilledContainers      int  `json:"filled_containers"`
	OccupiedHoles         int  `json:"occupied_holes"`
	ContainersExactlyFull bool `json:"containers_exactly_full"`
}

// Schedule is the ordered list of container retargeting events.
type Schedule struct {
	Initial      []models.Color `json:"initial"`
	Replacements []Replacement  `json:"replacements"`
	Expected     FinalState     `json:"expected"`
}

// ColorsAt returns the container colors in effect once collected items have
// been collected.
func (s Schedule) ColorsAt(collected int) []models.Color {
	colors := s.Initial
	for _, r := range s.Replacements {
		if r.Threshold > collected {
			break
		}
		colors = r.Colors
	}
	return colors
}

// Report carries validation diagnostics.
type Report struct {
	Strict   bool     `json:"strict"`
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// PeakPending and RoutingFailures come from replaying Deal on a
	// simulated board.
	PeakPending     int `json:"peak_pending"`
	RoutingFailures int `json:"routing_failures"`
}

// LevelPlan is the output handed to level setup.
type LevelPlan struct {
	Difficulty   Difficulty           `json:"difficulty"`
	Seed         int64                `json:"seed"`
	RawCount     int                  `json:"raw_count"`
	TotalItems   int                  `json:"total_items"`
	Distribution planner.Distribution `json:"distribution"`
	Schedule     Schedule             `json:"schedule"`
	// Deal is the spawn order of the level's colors.
	Deal   []models.Color `json:"deal"`
	Valid  bool           `json:"valid"`
	Report Report         `json:"report"`
}

// ValidationError lists the issues that failed a strict plan.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("balance: plan failed validation: %s", strings.Join(e.Issues, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrPlanInvalid }
