package polygon

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Outbound control frame: {"action":"auth","params":<key>} or
// {"action":"subscribe","params":"XT.X:BTCUSD,XT.X:ETHUSD"}.
type controlFrame struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// rawEvent is the upstream wire shape. "ev" discriminates trade
// messages ("XT") from status/control messages ("status").
type rawEvent struct {
	Ev      string  `json:"ev"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Pair    string  `json:"pair"`
	Price   float64 `json:"p"`
	Size    float64 `json:"s"`
	Millis  int64   `json:"t"`
}

const (
	evTrade  = "XT"
	evStatus = "status"
)

// Upstream sub-status values carried by status messages.
const (
	statusConnected   = "connected"
	statusAuthSuccess = "auth_success"
	statusAuthFailed  = "auth_failed"
	statusSuccess     = "success"
)

// Message is one decoded upstream event.
type Message interface{ isMessage() }

// StatusMessage reports handshake progress (auth, subscribe acks).
type StatusMessage struct {
	Status  string
	Message string
}

// TradeMessage is a single crypto trade in wire terms.
type TradeMessage struct {
	Pair   string
	Price  float64
	Size   float64
	Millis int64
}

// UnknownMessage carries an unrecognized discriminator; logged and
// dropped by the handler.
type UnknownMessage struct {
	Ev string
}

func (StatusMessage) isMessage()  {}
func (TradeMessage) isMessage()   {}
func (UnknownMessage) isMessage() {}

// decodeFrame flattens one frame into a message sequence. Frames
// arrive either as a single event object or as an array of events;
// both shapes are treated uniformly.
func decodeFrame(b []byte) ([]Message, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}

	var raws []rawEvent
	if b[0] == '[' {
		if err := json.Unmarshal(b, &raws); err != nil {
			return nil, fmt.Errorf("decode batch frame: %w", err)
		}
	} else {
		var one rawEvent
		if err := json.Unmarshal(b, &one); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		raws = append(raws, one)
	}

	msgs := make([]Message, 0, len(raws))
	for _, r := range raws {
		switch r.Ev {
		case evTrade:
			msgs = append(msgs, TradeMessage{
				Pair:   r.Pair,
				Price:  r.Price,
				Size:   r.Size,
				Millis: r.Millis,
			})
		case evStatus:
			msgs = append(msgs, StatusMessage{
				Status:  r.Status,
				Message: r.Message,
			})
		default:
			msgs = append(msgs, UnknownMessage{Ev: r.Ev})
		}
	}
	return msgs, nil
}
