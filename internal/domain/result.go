package domain

import (
	"strings"
	"time"
)

// Verification is the reviewer decision on a single round.
type Verification string

const (
	VerifyUnset    Verification = ""
	VerifyAccepted Verification = "ACCEPTED"
	VerifyRejected Verification = "REJECTED"
)

func ParseVerification(s string) (Verification, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACCEPTED", "ACCEPT":
		return VerifyAccepted, true
	case "REJECTED", "REJECT":
		return VerifyRejected, true
	default:
		return VerifyUnset, false
	}
}

// Participant is captured once at session start and immutable afterwards.
type Participant struct {
	Name      string `json:"name"`
	StudentID string `json:"student_id,omitempty"`
}

// RoundRecord is one completed round. Review operations only ever replace
// Verification; every other field is frozen at round end.
type RoundRecord struct {
	Round         int          `json:"round"`
	Letter        string       `json:"letter"`
	SubmittedTerm string       `json:"submitted_term"`
	TimeRemaining float64      `json:"time_remaining"`
	Points        float64      `json:"points"`
	Verification  Verification `json:"verification,omitempty"`
}

// ResultRecord is the persisted outcome of one finished session.
// VerifiedScore is nil until a reviewer or batch match has touched the
// record; it never defaults to 0 or AutoScore.
type ResultRecord struct {
	ID            string        `json:"id"`
	Participant   Participant   `json:"participant"`
	AutoScore     float64       `json:"auto_score"`
	Rounds        []RoundRecord `json:"rounds"`
	VerifiedScore *float64      `json:"verified_score,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// VerifiedSum recomputes the verified score over the accepted rounds only.
// Rejected and unset rounds never contribute.
func VerifiedSum(rounds []RoundRecord) float64 {
	var sum float64
	for _, r := range rounds {
		if r.Verification == VerifyAccepted {
			sum += r.Points
		}
	}
	return sum
}

// AutoSum re-scans the round history; it must always agree with the
// incrementally maintained auto score.
func AutoSum(rounds []RoundRecord) float64 {
	var sum float64
	for _, r := range rounds {
		sum += r.Points
	}
	return sum
}
