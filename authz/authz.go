// Package authz implements the allow-list membership check gating which
// senders the router will act on.
package authz

import (
	"log"
	"strings"
)

// List is a case-insensitive, whitespace-trimmed set of identifiers
// loaded once at startup and never mutated afterward.
type List struct {
	allowed map[string]struct{}
}

// New builds a List from a comma-separated allow-list, such as
// AUTHORIZATION_WHITELIST. An empty list is admissible; it denies every
// subsequent check and is logged as a startup warning so a silently
// empty allow-list doesn't look like a healthy deny-all policy.
func New(commaSeparated string) *List {
	allowed := make(map[string]struct{})
	for _, entry := range strings.Split(commaSeparated, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		allowed[entry] = struct{}{}
	}

	if len(allowed) == 0 {
		log.Println("authz: AUTHORIZATION_WHITELIST is empty; every authorization check will fail")
	}

	return &List{allowed: allowed}
}

// Allowed reports whether identifier is present on the allow-list, after
// trimming whitespace and folding case.
func (l *List) Allowed(identifier string) bool {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	_, ok := l.allowed[identifier]
	return ok
}
