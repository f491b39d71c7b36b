// Package router implements the per-envelope orchestration (spec §4.8,
// component C8): decode, authorize, resolve the group, archive inbound,
// optionally ask the assistant, send its reply, and archive outbound.
package router

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mayzyo/signal-bus/archive"
	"github.com/mayzyo/signal-bus/decode"
	"github.com/mayzyo/signal-bus/domain"
	"github.com/mayzyo/signal-bus/signalclient"
)

// Authorizer reports whether identifier is allowed to reach the
// assistant (spec §4.3, component C3).
type Authorizer interface {
	Allowed(identifier string) bool
}

// GroupResolver translates an internal group id into its public id
// (spec §4.2, component C2).
type GroupResolver interface {
	Resolve(internalID string) (string, error)
}

// Archiver accepts a MessageRecord for durable storage (spec §4.1,
// component C1). Enqueue failures must not stall message processing.
type Archiver interface {
	Enqueue(record archive.MessageRecord) error
}

// Sender performs the gateway's outbound operations (spec §4.4,
// component C4).
type Sender interface {
	SendMessage(message, recipient string) (*signalclient.SendResult, error)
	IndicateTyping(recipient string) error
	HideIndicator(recipient string) error
}

// Assistant calls the conversational webhook (spec §4.5, component C5).
type Assistant interface {
	Ask(message, userID string) (string, error)
}

// Router wires C1–C5 together around one envelope at a time (spec §4.8:
// "distinct envelopes are processed serially").
type Router struct {
	Account   string
	Authz     Authorizer
	Groups    GroupResolver
	Archive   Archiver
	Signal    Sender
	Assistant Assistant
}

// Route runs the ten-step procedure of spec §4.8 against one raw gateway
// payload. It never returns an error to the caller — every failure mode
// is logged and handled in place, per spec §7's "message processing must
// not be interrupted" principle; the receive loop calls this and moves
// on to the next frame regardless of outcome.
func (r *Router) Route(raw []byte) {
	correlationID := uuid.NewString()
	logf := func(format string, args ...any) {
		log.Printf("router[%s]: "+format, append([]any{correlationID}, args...)...)
	}

	// Step 1: decode.
	env, err := decode.Envelope(raw)
	if err != nil {
		logf("decode failed, dropping payload: %v (payload=%s)", err, string(raw))
		return
	}
	if env.DataMessage == nil {
		logf("no dataMessage, dropping silently")
		return
	}
	dm := env.DataMessage

	// Step 3: authorization.
	if !r.Authz.Allowed(env.Source) {
		logf("sender %q not authorized, dropping", env.Source)
		return
	}

	// Step 4: resolve group, if this is a group message.
	var groupID string
	if dm.GroupInfo != nil {
		resolved, err := r.Groups.Resolve(dm.GroupInfo.GroupID)
		if err != nil {
			logf("group resolution failed for %q, continuing without a group id: %v", dm.GroupInfo.GroupID, err)
		} else {
			groupID = resolved
		}
	}

	// Step 5: archive inbound.
	r.archiveInbound(logf, env, dm, groupID)

	// Step 6: group mention gate.
	if dm.GroupInfo != nil && !mentionsAccount(dm.Mentions, r.Account) {
		logf("group message has no mention of the registered account, stopping after archive")
		return
	}

	conversationID := groupID
	if conversationID == "" {
		conversationID = env.Source
	}

	// Step 7: typing indicator (best-effort).
	if err := r.Signal.IndicateTyping(conversationID); err != nil {
		logf("typing indicator failed (continuing): %v", err)
	}

	if dm.Message == nil {
		logf("no text to send to assistant, stopping")
		_ = r.Signal.HideIndicator(conversationID)
		return
	}

	// Step 8: ask the assistant.
	reply, err := r.Assistant.Ask(*dm.Message, conversationID)
	if err != nil {
		logf("assistant call failed: %v", err)
		if err := r.Signal.HideIndicator(conversationID); err != nil {
			logf("hide indicator failed: %v", err)
		}
		return
	}

	// Reply suppression: empty assistant reply sends nothing.
	if reply == "" {
		logf("assistant returned an empty reply, suppressing send")
		return
	}

	// Step 9: send reply and archive outbound.
	sendTarget := conversationID
	result, err := r.Signal.SendMessage(reply, sendTarget)
	if err != nil {
		logf("send message failed: %v", err)
		return
	}

	r.archiveOutbound(logf, env, groupID, reply, result)
}

func (r *Router) archiveInbound(logf func(string, ...any), env *domain.Envelope, dm *domain.DataMessage, groupID string) {
	record := archive.MessageRecord{
		Timestamp:               time.UnixMilli(dm.Timestamp).UTC(),
		SignalReceivedTimestamp: time.UnixMilli(env.ServerReceivedTimestamp).UTC(),
		Target:                  r.Account,
		Source:                  env.Source,
		GroupChat:               nilIfEmpty(groupID),
		Mentions:                encodeMentions(dm.Mentions),
		Content:                 dm.Message,
		CreatedAt:               time.Now().UTC(),
	}
	if env.ServerDeliveredTimestamp != 0 {
		t := time.UnixMilli(env.ServerDeliveredTimestamp).UTC()
		record.SignalDeliveredTimestamp = &t
	}

	content := ""
	if dm.Message != nil {
		content = *dm.Message
	}
	logf("archiving inbound message from %q: %q", env.Source, content)
	if err := r.Archive.Enqueue(record); err != nil {
		logf("inbound archive enqueue failed (continuing): %v", err)
	}
}

// archiveOutbound reproduces spec §4.4's documented recipient projection
// verbatim (see SPEC_FULL.md §7, open question 1): target is the
// sender's identifier even when the send was addressed to a group.
func (r *Router) archiveOutbound(logf func(string, ...any), env *domain.Envelope, groupID, reply string, result *signalclient.SendResult) {
	now := time.Now().UTC()
	record := archive.MessageRecord{
		Timestamp:               now,
		SignalReceivedTimestamp: time.UnixMilli(result.Timestamp).UTC(),
		Target:                  env.Source,
		Source:                  r.Account,
		GroupChat:               nilIfEmpty(groupID),
		Content:                 &reply,
		CreatedAt:               now,
	}

	if err := r.Archive.Enqueue(record); err != nil {
		logf("outbound archive enqueue failed (continuing): %v", err)
	}
}

// mentionsAccount reports whether any mention names the registered
// account (spec §4.8 step 6).
func mentionsAccount(mentions []domain.Mention, account string) bool {
	for _, m := range mentions {
		if strings.EqualFold(m.Name, account) {
			return true
		}
	}
	return false
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// encodeMentions serializes mentions into the opaque text blob the
// archival schema stores (spec §3's MessageRecord.mentions), or nil when
// there are none.
func encodeMentions(mentions []domain.Mention) *string {
	if len(mentions) == 0 {
		return nil
	}
	raw, err := json.Marshal(mentions)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}
