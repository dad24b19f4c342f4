package rules

import (
	"strings"
	"unicode"
)

// DrawReason identifies why a game ended (or would end) in a draw.
type DrawReason string

const (
	DrawByAgreement            DrawReason = "agreement"
	DrawByStalemate            DrawReason = "stalemate"
	DrawByThreefoldRepetition  DrawReason = "threefold_repetition"
	DrawByFiftyMoves           DrawReason = "fifty_moves"
	DrawByInsufficientMaterial DrawReason = "insufficient_material"
)

// IsInsufficientMaterial checks if neither player can checkmate (FIDE rules):
// King vs King; King+Bishop vs King; King+Knight vs King; King+Bishop vs
// King+Bishop on matching-color squares.
func IsInsufficientMaterial(board *Board) bool {
	var whitePieces, blackPieces []rune
	var whiteBishopSquares, blackBishopSquares []bool

	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			piece := board.Squares[r][f]
			if piece == 0 {
				continue
			}

			pieceType := unicode.ToUpper(piece)
			isLightSquare := (r+f)%2 == 1

			if IsWhitePiece(piece) {
				whitePieces = append(whitePieces, pieceType)
				if pieceType == Bishop {
					whiteBishopSquares = append(whiteBishopSquares, isLightSquare)
				}
			} else {
				blackPieces = append(blackPieces, pieceType)
				if pieceType == Bishop {
					blackBishopSquares = append(blackBishopSquares, isLightSquare)
				}
			}
		}
	}

	whitePieces = removePiece(whitePieces, King)
	blackPieces = removePiece(blackPieces, King)

	if len(whitePieces) == 0 && len(blackPieces) == 0 {
		return true
	}

	if len(whitePieces) == 0 && len(blackPieces) == 1 {
		return blackPieces[0] == Bishop || blackPieces[0] == Knight
	}
	if len(blackPieces) == 0 && len(whitePieces) == 1 {
		return whitePieces[0] == Bishop || whitePieces[0] == Knight
	}

	if len(whitePieces) == 1 && len(blackPieces) == 1 {
		if whitePieces[0] == Bishop && blackPieces[0] == Bishop {
			if len(whiteBishopSquares) > 0 && len(blackBishopSquares) > 0 {
				return whiteBishopSquares[0] == blackBishopSquares[0]
			}
		}
	}

	return false
}

func removePiece(pieces []rune, toRemove rune) []rune {
	result := make([]rune, 0, len(pieces))
	for _, p := range pieces {
		if p != toRemove {
			result = append(result, p)
		}
	}
	return result
}

// GetPositionKey extracts the position-relevant parts of FEN for repetition
// detection: piece placement, active color, castling rights, en passant
// square. Excludes halfmove clock and fullmove number.
func GetPositionKey(fen string) string {
	parts := strings.Split(fen, " ")
	if len(parts) < 4 {
		return fen
	}
	return parts[0] + " " + parts[1] + " " + parts[2] + " " + parts[3]
}

// CountPositionRepetitions counts how many times a position has occurred.
func CountPositionRepetitions(positionHistory []string, currentFEN string) int {
	currentKey := GetPositionKey(currentFEN)
	count := 0
	for _, pos := range positionHistory {
		if GetPositionKey(pos) == currentKey {
			count++
		}
	}
	return count
}

// IsThreefoldRepetition checks if the current position has occurred 3+ times.
func IsThreefoldRepetition(positionHistory []string, currentFEN string) bool {
	return CountPositionRepetitions(positionHistory, currentFEN) >= 3
}

// IsFiftyMoveRule checks if 50 moves have passed without a pawn move or
// capture. In FEN the halfmove clock counts plies, so 100 = 50 full moves.
func IsFiftyMoveRule(halfMoveClock int) bool {
	return halfMoveClock >= 100
}

// TerminalResult reports whether the position is a game-ending one, and if
// so which result and human-readable reason apply. This is the predicate
// spec §4.5 step 10 calls "the library reports a terminal position" — here
// checkmate and stalemate take priority over the draw-by-rule conditions,
// since those can only be evaluated once it's established the side to move
// isn't already mated or stalemated.
func TerminalResult(board *Board, positionHistory []string) (terminal bool, result string, reason string) {
	if board.IsCheckmate() {
		winner := "White"
		if board.WhiteToMove {
			winner = "Black"
		}
		res := "0-1"
		if !board.WhiteToMove {
			res = "1-0"
		}
		return true, res, "Checkmate. " + winner + " won."
	}
	if board.IsStalemate() {
		return true, "1/2-1/2", "Draw by stalemate."
	}
	if IsInsufficientMaterial(board) {
		return true, "1/2-1/2", DrawByInsufficientMaterial.DisplayText()
	}
	fen := board.ToFEN()
	if IsThreefoldRepetition(positionHistory, fen) {
		return true, "1/2-1/2", DrawByThreefoldRepetition.DisplayText()
	}
	if IsFiftyMoveRule(board.HalfMoveClock) {
		return true, "1/2-1/2", DrawByFiftyMoves.DisplayText()
	}
	return false, "", ""
}

// DisplayText returns a human-readable description of the draw reason.
func (r DrawReason) DisplayText() string {
	switch r {
	case DrawByAgreement:
		return "Draw by agreement."
	case DrawByStalemate:
		return "Draw by stalemate."
	case DrawByThreefoldRepetition:
		return "Draw by threefold repetition."
	case DrawByFiftyMoves:
		return "Draw by 50-move rule."
	case DrawByInsufficientMaterial:
		return "Draw by insufficient material."
	default:
		return "Draw."
	}
}
