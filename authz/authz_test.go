package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowed_CaseInsensitiveTrimmed(t *testing.T) {
	l := New("+15550001, +15550002")
	assert.True(t, l.Allowed("+15550001"))
	assert.True(t, l.Allowed("  +15550002  "))
	assert.False(t, l.Allowed("+15559999"))
}

func TestAllowed_EmptyListDeniesEverything(t *testing.T) {
	l := New("")
	assert.False(t, l.Allowed("+15550001"))
	assert.False(t, l.Allowed(""))
}

func TestAllowed_UuidSourceCaseFold(t *testing.T) {
	l := New("ABCD-1234")
	assert.True(t, l.Allowed("abcd-1234"))
}
