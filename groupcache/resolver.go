package groupcache

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// groupDescriptor is one entry of the gateway's /v1/groups/{account}
// response.
type groupDescriptor struct {
	InternalID string `json:"internal_id"`
	ID         string `json:"id"`
}

// Resolver translates a gateway internal group id into the externally
// addressable public group id, caching results in an LRU (spec §4.2).
type Resolver struct {
	cache   *LRU
	client  *http.Client
	gateway string
	account string
}

// NewResolver builds a Resolver against gateway (host:port, no scheme)
// for account, with an LRU cache bounded to cacheSize entries.
func NewResolver(gateway, account string, cacheSize int, client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{
		cache:   New(cacheSize),
		client:  client,
		gateway: gateway,
		account: account,
	}
}

// Resolve returns the public group id for internalID, consulting the
// cache first and falling back to a gateway fetch on a miss. A network
// failure or an internalID absent from the gateway's listing is returned
// as an error; callers must treat this as "continue with no group id"
// per spec §4.2 step 5, not as a fatal condition.
func (r *Resolver) Resolve(internalID string) (string, error) {
	if publicID, ok := r.cache.Get(internalID); ok {
		return publicID, nil
	}

	publicID, err := r.fetch(internalID)
	if err != nil {
		return "", fmt.Errorf("resolve group %q: %w", internalID, err)
	}

	r.cache.Put(internalID, publicID)
	return publicID, nil
}

func (r *Resolver) fetch(internalID string) (string, error) {
	url := fmt.Sprintf("http://%s/v1/groups/%s", r.gateway, r.account)
	resp, err := r.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch groups: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var descriptors []groupDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return "", fmt.Errorf("decode group descriptors: %w", err)
	}

	for _, d := range descriptors {
		if d.InternalID == internalID && d.ID != "" {
			return d.ID, nil
		}
	}

	return "", fmt.Errorf("no group descriptor found for internal id %q", internalID)
}
