package rules

import "strings"

// ParseSAN resolves a SAN string against the current board to a concrete
// (from, to, promotion) move, by generating every legal move for the side to
// move and matching its notation against san (ignoring the trailing +/#
// decoration, which this function re-derives rather than trusts from the
// client). This is the one piece the teacher's chess package never needed on
// its own — it only ever produced SAN from already-resolved from/to squares
// — but the engine's make_move operation receives a raw SAN string from the
// client, so resolution has to run in the other direction.
func ParseSAN(b *Board, san string) (from, to Position, promotion rune, err error) {
	normalized := strings.ReplaceAll(san, "0-0-0", "O-O-O")
	normalized = strings.ReplaceAll(normalized, "0-0", "O-O")
	target := stripDecoration(normalized)

	isWhite := b.WhiteToMove

	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			piece := b.Squares[r][f]
			if piece == 0 || IsWhitePiece(piece) != isWhite {
				continue
			}
			candFrom := Position{File: f, Rank: r}

			for tr := 0; tr < 8; tr++ {
				for tf := 0; tf < 8; tf++ {
					candTo := Position{File: tf, Rank: tr}
					if b.ValidateMove(candFrom, candTo) != nil {
						continue
					}

					promos := []rune{0}
					if needsPromotionChoice(piece, candTo) {
						promos = []rune{'Q', 'R', 'B', 'N'}
					}
					for _, promo := range promos {
						notation := b.GenerateNotation(candFrom, candTo, promo)
						if stripDecoration(notation) == target {
							return candFrom, candTo, promo, nil
						}
					}
				}
			}
		}
	}

	return Position{}, Position{}, 0, errInvalidSAN{san}
}

func needsPromotionChoice(piece rune, to Position) bool {
	return (piece == 'P' && to.Rank == 7) || (piece == 'p' && to.Rank == 0)
}

func stripDecoration(s string) string {
	return strings.TrimRight(s, "+#")
}

type errInvalidSAN struct{ san string }

func (e errInvalidSAN) Error() string {
	return "unparseable or illegal SAN move: " + e.san
}
