// Package receive implements the resilient WebSocket consumer for the
// gateway's receive stream (spec §4.7): a reconnect/backoff loop that
// hands each payload to a handler.
package receive

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readBufferSize = 4096
	reconnectDelay = 5 * time.Second
)

// Handler processes one decoded-from-the-wire payload. The receive loop
// awaits it before reading the next frame, so a slow handler naturally
// throttles intake (spec §4.7's backpressure note).
type Handler func(payload []byte)

// Loop is a single-owner WebSocket consumer implementing the
// Disconnected → Connecting → Receiving → Closing → Disconnected state
// machine of spec §4.7.
type Loop struct {
	gateway string
	account string
	handler Handler
	dialer  *websocket.Dialer
}

// New builds a Loop against gateway (host:port, no scheme) for account.
// Every received frame is passed to handler.
func New(gateway, account string, handler Handler) *Loop {
	return &Loop{
		gateway: gateway,
		account: account,
		handler: handler,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   readBufferSize,
		},
	}
}

// Run connects and receives until ctx is cancelled. On any connect or
// receive error it logs, sleeps the fixed reconnect delay, and retries —
// no exponential backoff or jitter, per spec §4.7/§9. On cancellation it
// sends a normal-closure control frame (if connected) and returns.
func (l *Loop) Run(ctx context.Context) {
	url := fmt.Sprintf("ws://%s/v1/receive/%s", l.gateway, l.account)

	for {
		select {
		case <-ctx.Done():
			log.Println("receive: shutdown requested before connecting")
			return
		default:
		}

		conn, _, err := l.dialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Printf("receive: connect failed: %v", err)
			if !sleepOrDone(ctx, reconnectDelay) {
				return
			}
			continue
		}

		log.Printf("receive: connected to %s", url)
		if done := l.receiveUntilError(ctx, conn); done {
			return
		}

		log.Println("receive: disconnected, reconnecting in 5s")
		if !sleepOrDone(ctx, reconnectDelay) {
			return
		}
	}
}

// receiveUntilError reads frames until the context is cancelled, the
// peer closes the connection, or a read error occurs. It returns true
// if the caller should stop entirely (context cancelled).
func (l *Loop) receiveUntilError(ctx context.Context, conn *websocket.Conn) bool {
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Host shutting down"),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
		case <-closed:
		}
	}()
	defer close(closed)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Println("receive: server closed connection normally")
				return false
			}
			log.Printf("receive: read error: %v", err)
			return false
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		l.handler(payload)

		if ctx.Err() != nil {
			return true
		}
	}
}

// sleepOrDone sleeps for d, returning false early (without completing
// the sleep) if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
