package receive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func TestLoop_DeliversEachFrameToHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"source":"a"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"source":"b"}`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var received []string
	l := New(strings.TrimPrefix(srv.URL, "http://"), "acct", func(payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, received, `{"source":"a"}`)
	assert.Contains(t, received, `{"source":"b"}`)
}

func TestLoop_ReturnsPromptlyOnCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	l := New(strings.TrimPrefix(srv.URL, "http://"), "acct", func([]byte) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancellation")
	}
}
