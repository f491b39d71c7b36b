package assistant

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk_SendsExpectedRequestAndAuth(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte("hi there"))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token")
	reply, err := c.Ask("hello", "+15550001")
	require.NoError(t, err)

	assert.Equal(t, "hi there", reply)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("secret-token")), gotAuth)
	assert.Equal(t, "hello", gotBody["chatInput"])
	assert.Equal(t, "sendMessage", gotBody["action"])
	assert.Equal(t, "intelligence-+15550001", gotBody["sessionId"])
}

func TestAsk_GroupSessionIDUsesGroupNotSender(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.Ask("hello", "PUB1")
	require.NoError(t, err)
	assert.Equal(t, "intelligence-PUB1", gotBody["sessionId"])
}

func TestAsk_NonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.Ask("hello", "+1")
	assert.Error(t, err)
}
