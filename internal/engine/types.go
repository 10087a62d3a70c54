package engine

import (
	"time"

	"techcharades/internal/domain"
)

// State is the lifecycle of one game session.
type State string

const (
	StateIdle     State = "IDLE"
	StatePlaying  State = "PLAYING"
	StateGameOver State = "GAME_OVER"
)

// Config carries the round parameters for all sessions of a manager.
type Config struct {
	Duration     time.Duration // countdown per round
	TickInterval time.Duration // cadence for deadline re-evaluation
	MaxRounds    int
}

func (c Config) withDefaults() Config {
	if c.Duration <= 0 {
		c.Duration = 45 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 15
	}
	return c
}

// Snapshot is the render view of a session handed to the presentation layer.
type Snapshot struct {
	SessionID     string               `json:"session_id"`
	Participant   domain.Participant   `json:"participant"`
	State         State                `json:"state"`
	Round         int                  `json:"round"`
	MaxRounds     int                  `json:"max_rounds"`
	Letter        string               `json:"letter,omitempty"`
	TimeRemaining float64              `json:"time_remaining"`
	AutoScore     float64              `json:"auto_score"`
	InputError    bool                 `json:"input_error"`
	Rounds        []domain.RoundRecord `json:"rounds,omitempty"`
	ResultID      string               `json:"result_id,omitempty"`
}
