// Package elo implements the rating calculator collaborator (spec §4.6):
// expected-score computation, ceiling-rounded rating deltas, and the
// monotone K-factor transition rule.
package elo

import "math"

// GameResult is a player's outcome in a single game, from that player's
// point of view.
type GameResult int

const (
	Loss GameResult = iota
	Draw
	Win
)

const (
	KFactorNewbie = 40 // starting K-factor
	KFactorActive = 20 // after 30 games played
	KFactorExpert = 10 // after 30 games at KFactorActive AND rating >= 2400
)

// Calculator computes rating deltas and K-factor transitions. It holds no
// state; every method is a pure function of its arguments.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// ExpectedScore returns E_A = R_A / (R_A + R_B) where R_X = 10^(rating_X/400).
func (c *Calculator) ExpectedScore(playerRating, opponentRating int) float64 {
	rA := math.Pow(10, float64(playerRating)/400.0)
	rB := math.Pow(10, float64(opponentRating)/400.0)
	return rA / (rA + rB)
}

// RatingDelta computes the signed rating change for one side of a game per
// spec §4.6: win = ⌈k·(1-E)⌉, draw = ⌈k·(0.5-E)⌉, lose = ⌈k·(0-E)⌉, rounding
// toward +∞ (math.Ceil) rather than to nearest. draw and lose deltas are
// typically <= 0.
func (c *Calculator) RatingDelta(playerRating, opponentRating int, result GameResult, kFactor int) int {
	e := c.ExpectedScore(playerRating, opponentRating)

	var actual float64
	switch result {
	case Win:
		actual = 1.0
	case Draw:
		actual = 0.5
	case Loss:
		actual = 0.0
	}

	delta := math.Ceil(float64(kFactor) * (actual - e))
	return int(delta)
}

// PossibleDeltas returns the win/draw/lose deltas a player would see against
// opponentRating at the given K-factor — used to populate the
// game_started.rating_changes payload before the game's outcome is known.
func (c *Calculator) PossibleDeltas(playerRating, opponentRating, kFactor int) (win, draw, lose int) {
	return c.RatingDelta(playerRating, opponentRating, Win, kFactor),
		c.RatingDelta(playerRating, opponentRating, Draw, kFactor),
		c.RatingDelta(playerRating, opponentRating, Loss, kFactor)
}

// NextKFactor applies the FIDE-style K-factor transition rule, evaluated
// after the rating update using the player's POST-update rating and
// games-played count. The rule is monotone: k never increases.
func (c *Calculator) NextKFactor(currentK int, gamesPlayed int, newRating int) int {
	k := currentK
	if k == KFactorNewbie && gamesPlayed >= 30 {
		k = KFactorActive
	}
	if k == KFactorActive && gamesPlayed >= 30 && newRating >= 2400 {
		k = KFactorExpert
	}
	return k
}

// GetGameResultFromWinner converts a winner color ("white"/"black"/"" for
// draw) into the (whiteResult, blackResult) pair.
func GetGameResultFromWinner(winner string) (GameResult, GameResult) {
	switch winner {
	case "white":
		return Win, Loss
	case "black":
		return Loss, Win
	default:
		return Draw, Draw
	}
}
