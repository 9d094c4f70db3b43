package bus

import (
	"strconv"
	"time"
)

// ChatHandle identifies where pipeline output for one event must be delivered.
// It is captured when the event arrives and travels with every job built from it.
type ChatHandle struct {
	Channel string `json:"channel"`
	ChatID  int64  `json:"chat_id"`
}

// String renders the handle for logs.
func (h ChatHandle) String() string {
	return h.Channel + ":" + strconv.FormatInt(h.ChatID, 10)
}

// Sticker describes a sticker attached to an inbound message.
type Sticker struct {
	FileID   string `json:"file_id"`
	UniqueID string `json:"unique_id"`
	Animated bool   `json:"animated"`
	Video    bool   `json:"video"`
}

// IncomingEvent is one inbound chat message as seen by the pipeline.
type IncomingEvent struct {
	Origin     ChatHandle `json:"origin"`
	Sticker    *Sticker   `json:"sticker,omitempty"`
	Text       string     `json:"text,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}

// HasPayload reports whether the event carries a sticker or any text.
func (e IncomingEvent) HasPayload() bool {
	return e.Sticker != nil || e.Text != ""
}
