// Package decode turns a raw gateway payload into the internal envelope
// model, synthesizing a text body for sticker- and attachment-only
// messages.
package decode

import (
	"encoding/json"
	"fmt"

	"github.com/mayzyo/signal-bus/domain"
)

const (
	textSticker    = "STICKER"
	textAttachment = "ATTACHMENT"
)

// Envelope strictly parses raw into a domain.Envelope and synthesizes a
// text body where the data message carries no text of its own. Missing
// optional fields are admissible; a malformed payload is returned as an
// error for the caller to log with the raw bytes and drop, per spec §4.6.
func Envelope(raw []byte) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	if env.DataMessage != nil {
		synthesizeText(env.DataMessage)
	}

	return &env, nil
}

// synthesizeText fills DataMessage.Message with a sentinel value when the
// message carries no text of its own: "STICKER" when a sticker is
// present, else "ATTACHMENT" when attachments are present, else the
// field is left nil.
func synthesizeText(dm *domain.DataMessage) {
	if dm.Message != nil {
		return
	}
	switch {
	case dm.Sticker != nil:
		text := textSticker
		dm.Message = &text
	case len(dm.Attachments) > 0:
		text := textAttachment
		dm.Message = &text
	}
}
