// Package domain holds the wire-level message shapes decoded from the
// Signal gateway. The archival row built from them is
// archive.MessageRecord.
package domain

import "encoding/json"

// Envelope is the gateway's outer JSON object wrapping one message event.
// Field names follow the gateway's REST/WebSocket payload exactly; see
// spec §3.
type Envelope struct {
	Account                  string          `json:"account"`
	Source                   string          `json:"source"`
	SourceNumber             string          `json:"sourceNumber"`
	SourceUuid               string          `json:"sourceUuid"`
	SourceName               string          `json:"sourceName"`
	SourceDevice             int             `json:"sourceDevice"`
	Timestamp                int64           `json:"timestamp"`
	ServerReceivedTimestamp  int64           `json:"serverReceivedTimestamp"`
	ServerDeliveredTimestamp int64           `json:"serverDeliveredTimestamp"`
	DataMessage              *DataMessage    `json:"dataMessage"`
	SyncMessage              json.RawMessage `json:"syncMessage"`
}

// DataMessage is the inner payload of a data message envelope.
type DataMessage struct {
	Timestamp   int64        `json:"timestamp"`
	Message     *string      `json:"message"`
	Attachments []Attachment `json:"attachments"`
	Sticker     *Sticker     `json:"sticker"`
	Mentions    []Mention    `json:"mentions"`
	GroupInfo   *GroupInfo   `json:"groupInfo"`
}

// Mention is a typed reference to an account inside a group message's
// text span.
type Mention struct {
	Name   string `json:"name"`
	Number string `json:"number"`
	Uuid   string `json:"uuid"`
	Start  int    `json:"start"`
	Length int    `json:"length"`
}

// GroupInfo marks a message as belonging to a group and carries the
// gateway's opaque internal group id.
type GroupInfo struct {
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
	Revision  int    `json:"revision"`
	Type      string `json:"type"`
}

// Attachment describes a media attachment. Only its presence matters to
// the pipeline's text-synthesis step; the fields are retained for
// whatever archival consumer eventually wants the full shape.
type Attachment struct {
	ContentType     string `json:"contentType"`
	Filename        string `json:"filename"`
	ID              string `json:"id"`
	Size            int    `json:"size"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Caption         string `json:"caption"`
	UploadTimestamp int64  `json:"uploadTimestamp"`
}

// Sticker marks a message as a sticker send with no text body.
type Sticker struct {
	PackID    string `json:"packId"`
	StickerID int    `json:"stickerId"`
}
