package models

import "time"

// PlayerColor identifies a side in a game.
type PlayerColor string

const (
	White PlayerColor = "white"
	Black PlayerColor = "black"
)

// Opponent returns the other color.
func (c PlayerColor) Opponent() PlayerColor {
	if c == White {
		return Black
	}
	return White
}

// GameState is the Game Engine's state machine position (spec §4.5).
type GameState string

const (
	GameCreated  GameState = "CREATED"
	GameStarted  GameState = "STARTED"
	GameFinished GameState = "FINISHED"
)

// Game results, spec §3.
const (
	ResultInProgress  = "*"
	ResultWhiteWins   = "1-0"
	ResultBlackWins   = "0-1"
	ResultDraw        = "1/2-1/2"
	ResultCancelled   = "-"
)

// TimerHandle is a scheduled callback's opaque id plus the wall-clock time it
// was scheduled for, persisted alongside the Game per spec §3/§4.2.
type TimerHandle struct {
	ID  string    `bson:"id" json:"id"`
	Eta time.Time `bson:"eta" json:"eta"`
}

// Game is the spec §3 Game entity. Identity is a stable integer id,
// generated by the Store's counter sequence (internal/store) rather than a
// Mongo ObjectID. GameRequest ids come from a separate sequence of the same
// counter mechanism, and those are the Matchmaker's tiebreak key.
type Game struct {
	ID int64 `bson:"_id" json:"id"`

	WhiteUserID int64 `bson:"whiteUserId" json:"whiteUserId"`
	BlackUserID int64 `bson:"blackUserId" json:"blackUserId"`

	WhiteRating int `bson:"whiteRating" json:"whiteRating"`
	BlackRating int `bson:"blackRating" json:"blackRating"`

	State  GameState `bson:"state" json:"state"`
	Result string    `bson:"result" json:"result"`

	// Moves is the append-only SAN move list (spec §6: "ordered string slice
	// of SAN to preserve order and allow O(1) append").
	Moves []string `bson:"moves" json:"moves"`

	TotalClockMicros time.Duration `bson:"totalClockMicros" json:"totalClockMicros"`
	WhiteClockMicros time.Duration `bson:"whiteClockMicros" json:"whiteClockMicros"`
	BlackClockMicros time.Duration `bson:"blackClockMicros" json:"blackClockMicros"`

	LastMoveTime *time.Time `bson:"lastMoveTime,omitempty" json:"lastMoveTime,omitempty"`

	// Timer handles, nullable per task (spec §3).
	FirstMoveTimeout      *TimerHandle `bson:"firstMoveTimeout,omitempty" json:"firstMoveTimeout,omitempty"`
	WhiteTimeIsUp         *TimerHandle `bson:"whiteTimeIsUp,omitempty" json:"whiteTimeIsUp,omitempty"`
	BlackTimeIsUp         *TimerHandle `bson:"blackTimeIsUp,omitempty" json:"blackTimeIsUp,omitempty"`
	WhiteDisconnectTimeout *TimerHandle `bson:"whiteDisconnectTimeout,omitempty" json:"whiteDisconnectTimeout,omitempty"`
	BlackDisconnectTimeout *TimerHandle `bson:"blackDisconnectTimeout,omitempty" json:"blackDisconnectTimeout,omitempty"`

	// DrawOfferSender holds the user id of whichever side last offered a
	// draw, or zero if none (spec §3: draw_offer_sender ∈ {none, white, black}).
	DrawOfferSender int64 `bson:"drawOfferSender" json:"drawOfferSender"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Turn returns whose move it is, derived from ply count.
func (g *Game) Turn() PlayerColor {
	if len(g.Moves)%2 == 0 {
		return White
	}
	return Black
}

// UserIDFor returns the user id playing the given color.
func (g *Game) UserIDFor(c PlayerColor) int64 {
	if c == White {
		return g.WhiteUserID
	}
	return g.BlackUserID
}

// ColorOf returns the color the given user plays, and whether they're a participant.
func (g *Game) ColorOf(userID int64) (PlayerColor, bool) {
	switch userID {
	case g.WhiteUserID:
		return White, true
	case g.BlackUserID:
		return Black, true
	default:
		return "", false
	}
}

// ClockFor returns the remaining clock for the given side.
func (g *Game) ClockFor(c PlayerColor) time.Duration {
	if c == White {
		return g.WhiteClockMicros
	}
	return g.BlackClockMicros
}

// SetClock sets the remaining clock for the given side.
func (g *Game) SetClock(c PlayerColor, d time.Duration) {
	if c == White {
		g.WhiteClockMicros = d
	} else {
		g.BlackClockMicros = d
	}
}

// TimeIsUpHandle returns the per-side time_is_up timer handle pointer (by
// reference so callers can clear it in place).
func (g *Game) TimeIsUpHandle(c PlayerColor) **TimerHandle {
	if c == White {
		return &g.WhiteTimeIsUp
	}
	return &g.BlackTimeIsUp
}

// DisconnectHandle returns the per-side disconnect timer handle pointer.
func (g *Game) DisconnectHandle(c PlayerColor) **TimerHandle {
	if c == White {
		return &g.WhiteDisconnectTimeout
	}
	return &g.BlackDisconnectTimeout
}

// InitialBoardFEN is the standard chess starting position.
const InitialBoardFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
