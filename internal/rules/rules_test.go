package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestParseFENRoundTrip(t *testing.T) {
	board, err := ParseFEN(startFEN)
	require.NoError(t, err)
	assert.Equal(t, startFEN, board.ToFEN())
}

func TestApplyMoveUpdatesSideToMoveAndFEN(t *testing.T) {
	board, err := ParseFEN(startFEN)
	require.NoError(t, err)

	next, canonical, err := ApplyMove(board, "e4")
	require.NoError(t, err)
	assert.Equal(t, "e4", canonical)
	assert.False(t, next.WhiteToMove)
	assert.Contains(t, next.ToFEN(), " b ")
}

func TestApplyMoveRejectsIllegalSAN(t *testing.T) {
	board, err := ParseFEN(startFEN)
	require.NoError(t, err)

	_, _, err = ApplyMove(board, "e5")
	assert.Error(t, err, "pawn on e2 cannot reach e5's rank in one white move from the back rank setup")
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	board, err := ParseFEN(startFEN)
	require.NoError(t, err)

	for _, san := range []string{"f3", "e5", "g4", "Qh4#"} {
		board, _, err = ApplyMove(board, san)
		require.NoError(t, err, "move %s", san)
	}

	terminal, result, _ := TerminalResult(board, nil)
	assert.True(t, terminal)
	assert.Equal(t, "0-1", result)
	assert.True(t, board.IsCheckmate())
}

func TestIsInsufficientMaterialKingVsKing(t *testing.T) {
	board, err := ParseFEN("8/8/4k3/8/8/4K3/8/8 w - - 0 1")
	require.NoError(t, err)
	assert.True(t, IsInsufficientMaterial(board))
}

func TestIsInsufficientMaterialFalseWithRook(t *testing.T) {
	board, err := ParseFEN("8/8/4k3/8/8/4K3/8/R7 w - - 0 1")
	require.NoError(t, err)
	assert.False(t, IsInsufficientMaterial(board))
}

func TestIsFiftyMoveRule(t *testing.T) {
	assert.False(t, IsFiftyMoveRule(99))
	assert.True(t, IsFiftyMoveRule(100))
}

func TestIsThreefoldRepetition(t *testing.T) {
	history := []string{startFEN, "other w KQkq - 0 1", startFEN, startFEN}
	assert.True(t, IsThreefoldRepetition(history, startFEN))
	assert.False(t, IsThreefoldRepetition(history[:2], startFEN))
}

func TestParsePositionRejectsGarbage(t *testing.T) {
	_, err := ParsePosition("z9")
	assert.Error(t, err)
	_, err = ParsePosition("e4")
	assert.NoError(t, err)
}
