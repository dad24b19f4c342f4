package gateway

import "encoding/json"

// Inbound client event type names (spec §6).
const (
	inSearchGame       = "search_game"
	inCancelSearch     = "cancel_search"
	inMakeMove         = "make_move"
	inResign           = "resign"
	inMakeDrawOffer    = "make_draw_offer"
	inAcceptDrawOffer  = "accept_draw_offer"
	inDeclineDrawOffer = "decline_draw_offer"
)

// envelope is the wire shape of every inbound and outbound message: a type
// tag plus a freeform payload, matching the teacher's WSMessage idiom.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundEnvelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// searchGamePayload's Minutes field is named for the wire schema inherited
// from the original spec text; its value is a time-control-seconds bucket
// key from models.AllowedTimeControls, not an actual minute count (spec §9
// Open Questions: the fixed-seconds set is authoritative).
type searchGamePayload struct {
	Minutes int    `json:"minutes"`
	GameID  *int64 `json:"game_id,omitempty"`
}

type makeMovePayload struct {
	GameID int64  `json:"game_id"`
	San    string `json:"san"`
}
