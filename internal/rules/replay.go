package rules

import "fmt"

// Replay reconstructs the board reached after applying moves (in SAN, in
// order) to the initial position, along with the FEN seen after each move
// (used by the engine for threefold-repetition detection). The Game Engine
// calls this on every operation that needs the current position rather than
// persisting a derived board itself (spec §4.5: "Reconstruct board by
// replaying moves").
func Replay(moves []string) (board *Board, positionHistory []string, err error) {
	board, err = ParseFEN(InitialFEN)
	if err != nil {
		return nil, nil, err
	}
	positionHistory = make([]string, 0, len(moves))
	for i, san := range moves {
		from, to, promo, perr := ParseSAN(board, san)
		if perr != nil {
			return nil, nil, fmt.Errorf("replay move %d (%s): %w", i+1, san, perr)
		}
		board = board.MakeMove(from, to, promo)
		positionHistory = append(positionHistory, board.ToFEN())
	}
	return board, positionHistory, nil
}

// InitialFEN is the standard chess starting position.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ApplyMove parses saying san against board and returns the resulting board
// plus the canonical SAN (re-derived, not trusted from the caller) for
// persistence. Returns an error if san is unparseable or illegal — the
// caller (Game Engine) treats that as "drop the request silently" per spec
// §4.5 make_move step 1.
func ApplyMove(board *Board, san string) (next *Board, canonicalSAN string, err error) {
	from, to, promo, err := ParseSAN(board, san)
	if err != nil {
		return nil, "", err
	}
	canonicalSAN = board.GenerateNotation(from, to, promo)
	next = board.MakeMove(from, to, promo)
	return next, canonicalSAN, nil
}
