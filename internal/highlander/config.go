package highlander

import "time"

type ProximityThresholds struct {
	Near      float64 `json:"near"`
	VeryClose float64 `json:"veryClose"`
	Reached   float64 `json:"reached"`
}

// DistanceConfig holds the system-wide distance tuning parameters.
type DistanceConfig struct {
	GoalRadiusMin             float64             `json:"goalRadiusMin"`
	GoalRadiusMax             float64             `json:"goalRadiusMax"`
	ProximityThresholds       ProximityThresholds `json:"proximityThresholds"`
	DefaultProximityThreshold float64             `json:"defaultProximityThreshold"`
	DefaultMaxPlayers         int                 `json:"defaultMaxPlayers"`
}

type ConfigMetadata struct {
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`
	Version   int       `json:"version"`
}

type SystemConfig struct {
	Distance DistanceConfig `json:"distance"`
	Metadata ConfigMetadata `json:"metadata"`
}

// NewGameConfig fills the unset fields of p from d and validates the result.
func (d DistanceConfig) NewGameConfig(p GameConfigPatch) (GameConfig, error) {
	cfg := GameConfig{
		MaxPlayers:         d.DefaultMaxPlayers,
		GoalRadiusMin:      d.GoalRadiusMin,
		GoalRadiusMax:      d.GoalRadiusMax,
		ProximityThreshold: d.DefaultProximityThreshold,
	}
	if p.MaxPlayers != nil {
		cfg.MaxPlayers = *p.MaxPlayers
	}
	if p.GoalRadiusMin != nil {
		cfg.GoalRadiusMin = *p.GoalRadiusMin
	}
	if p.GoalRadiusMax != nil {
		cfg.GoalRadiusMax = *p.GoalRadiusMax
	}
	if p.ProximityThreshold != nil {
		cfg.ProximityThreshold = *p.ProximityThreshold
	}
	if p.TimeLimit != nil {
		cfg.TimeLimit = *p.TimeLimit
	}
	if err := cfg.Validate(); err != nil {
		return GameConfig{}, err
	}
	return cfg, nil
}
