package groupcache

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayStub(t *testing.T, descriptors []groupDescriptor) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/v1/groups/acct1"))
		_ = json.NewEncoder(w).Encode(descriptors)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gatewayAddr(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestResolver_FetchesOnMissAndCaches(t *testing.T) {
	srv := newGatewayStub(t, []groupDescriptor{{InternalID: "INT1", ID: "PUB1"}})
	r := NewResolver(gatewayAddr(srv), "acct1", 10, nil)

	publicID, err := r.Resolve("INT1")
	require.NoError(t, err)
	assert.Equal(t, "PUB1", publicID)
	assert.Equal(t, 1, r.cache.Len())
}

func TestResolver_NoMatchIsError(t *testing.T) {
	srv := newGatewayStub(t, []groupDescriptor{{InternalID: "OTHER", ID: "PUB1"}})
	r := NewResolver(gatewayAddr(srv), "acct1", 10, nil)

	_, err := r.Resolve("INT1")
	assert.Error(t, err)
}

func TestResolver_EmptyPublicIDIsIgnored(t *testing.T) {
	srv := newGatewayStub(t, []groupDescriptor{{InternalID: "INT1", ID: ""}})
	r := NewResolver(gatewayAddr(srv), "acct1", 10, nil)

	_, err := r.Resolve("INT1")
	assert.Error(t, err)
}

func TestResolver_CacheHitSkipsNetwork(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode([]groupDescriptor{{InternalID: "INT1", ID: "PUB1"}})
	}))
	defer srv.Close()

	r := NewResolver(gatewayAddr(srv), "acct1", 10, nil)
	_, err := r.Resolve("INT1")
	require.NoError(t, err)
	_, err = r.Resolve("INT1")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}
