package models

import "time"

// User is the spec §3 User entity. Login is the unique case-sensitive
// identity (3-20 of [A-Za-z0-9_]); credential handling itself (password
// hashing, OAuth) lives in internal/auth and is an out-of-core surface per
// spec §1's Non-goals, but the rating/session fields below are read and
// written directly by the Game Engine and Matchmaker.
type User struct {
	ID           int64  `bson:"_id" json:"id"`
	Login        string `bson:"login" json:"login"`
	PasswordHash string `bson:"passwordHash" json:"-"`

	Rating      int `bson:"rating" json:"rating"`
	GamesPlayed int `bson:"gamesPlayed" json:"gamesPlayed"`
	KFactor     int `bson:"kFactor" json:"kFactor"`

	// CurrentGameID is nil when the user has no active game.
	CurrentGameID *int64 `bson:"currentGameId,omitempty" json:"currentGameId,omitempty"`
	InSearch      bool   `bson:"inSearch" json:"inSearch"`

	// GameHistory is every completed game id this user has finished with
	// ratings applied (spec §4.5 end_game: appended on each rated finalize).
	GameHistory []int64 `bson:"gameHistory,omitempty" json:"gameHistory,omitempty"`

	CurrentSessionID       *string   `bson:"currentSessionId,omitempty" json:"-"`
	LastSessionChangeTime  time.Time `bson:"lastSessionChangeTime" json:"-"`

	AvatarHash string `bson:"avatarHash,omitempty" json:"avatarHash,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Default values, spec §3.
const (
	DefaultRating  = 1200
	DefaultKFactor = 40
)

// LoginPattern constrains User.Login: 3-20 of [A-Za-z0-9_].
const LoginPattern = `^[A-Za-z0-9_]{3,20}$`
