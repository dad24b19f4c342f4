package models

import "time"

// GameRequest is the Matchmaker's queue entry (spec §3). ID is a monotonic
// sequence id (from the Store's counters collection) used as the
// deterministic tiebreak key for equal-distance pairing candidates (spec
// §4.4: "first-found ... deterministic by request id ascending").
type GameRequest struct {
	ID                 int64     `bson:"_id" json:"id"`
	UserID             int64     `bson:"userId" json:"userId"`
	TimeControlSeconds int       `bson:"timeControlSeconds" json:"timeControlSeconds"`
	CreatedAt          time.Time `bson:"createdAt" json:"createdAt"`
}

// AllowedTimeControls is the fixed set of time controls in seconds (spec §6).
var AllowedTimeControls = []int{60, 120, 180, 300, 600, 1200, 1800, 3600}

// IsAllowedTimeControl reports whether seconds is a member of the allowed set.
func IsAllowedTimeControl(seconds int) bool {
	for _, s := range AllowedTimeControls {
		if s == seconds {
			return true
		}
	}
	return false
}

// RatingGapTolerance is the maximum Elo gap accepted for pairing (spec §6).
const RatingGapTolerance = 200

// FirstMoveTimeout and DisconnectTimeout are the fixed timer durations (spec §6).
const (
	FirstMoveTimeout  = 15 * time.Second
	DisconnectTimeout = 60 * time.Second
)
