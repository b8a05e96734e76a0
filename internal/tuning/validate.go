package tuning

import (
	"strings"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

// DistancePatch is a partial update of the distance config. Nil fields keep
// their current value.
type DistancePatch struct {
	GoalRadiusMin             *float64         `json:"goalRadiusMin,omitempty"`
	GoalRadiusMax             *float64         `json:"goalRadiusMax,omitempty"`
	ProximityThresholds       *ThresholdsPatch `json:"proximityThresholds,omitempty"`
	DefaultProximityThreshold *float64         `json:"defaultProximityThreshold,omitempty"`
	DefaultMaxPlayers         *int             `json:"defaultMaxPlayers,omitempty"`
}

type ThresholdsPatch struct {
	Near      *float64 `json:"near,omitempty"`
	VeryClose *float64 `json:"veryClose,omitempty"`
	Reached   *float64 `json:"reached,omitempty"`
}

// ValidationError lists every problem found in a patch.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid distance config: " + strings.Join(e.Problems, "; ")
}

func inRange(v, lo, hi float64) bool { return v >= lo && v <= hi }

// Validate checks each field present in p against its allowed range.
func (p DistancePatch) Validate() []string {
	var problems []string

	if p.GoalRadiusMin != nil && !inRange(*p.GoalRadiusMin, 50, 5000) {
		problems = append(problems, "goalRadiusMin must be between 50 and 5000 meters")
	}
	if p.GoalRadiusMax != nil && !inRange(*p.GoalRadiusMax, 100, 10000) {
		problems = append(problems, "goalRadiusMax must be between 100 and 10000 meters")
	}
	if t := p.ProximityThresholds; t != nil {
		if t.Near != nil && !inRange(*t.Near, 10, 500) {
			problems = append(problems, "proximityThresholds.near must be between 10 and 500 meters")
		}
		if t.VeryClose != nil && !inRange(*t.VeryClose, 5, 200) {
			problems = append(problems, "proximityThresholds.veryClose must be between 5 and 200 meters")
		}
		if t.Reached != nil && !inRange(*t.Reached, 5, 100) {
			problems = append(problems, "proximityThresholds.reached must be between 5 and 100 meters")
		}
	}
	if p.DefaultProximityThreshold != nil && !inRange(*p.DefaultProximityThreshold, 5, 100) {
		problems = append(problems, "defaultProximityThreshold must be between 5 and 100 meters")
	}
	if p.DefaultMaxPlayers != nil && (*p.DefaultMaxPlayers < 1 || *p.DefaultMaxPlayers > 50) {
		problems = append(problems, "defaultMaxPlayers must be between 1 and 50")
	}
	return problems
}

// Apply returns d with p's fields laid over it.
func (p DistancePatch) Apply(d highlander.DistanceConfig) highlander.DistanceConfig {
	if p.GoalRadiusMin != nil {
		d.GoalRadiusMin = *p.GoalRadiusMin
	}
	if p.GoalRadiusMax != nil {
		d.GoalRadiusMax = *p.GoalRadiusMax
	}
	if t := p.ProximityThresholds; t != nil {
		if t.Near != nil {
			d.ProximityThresholds.Near = *t.Near
		}
		if t.VeryClose != nil {
			d.ProximityThresholds.VeryClose = *t.VeryClose
		}
		if t.Reached != nil {
			d.ProximityThresholds.Reached = *t.Reached
		}
	}
	if p.DefaultProximityThreshold != nil {
		d.DefaultProximityThreshold = *p.DefaultProximityThreshold
	}
	if p.DefaultMaxPlayers != nil {
		d.DefaultMaxPlayers = *p.DefaultMaxPlayers
	}
	return d
}
