package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckID(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{"simple", "acme", true},
		{"with punctuation", "acme-idp_01.eu", true},
		{"empty", "", false},
		{"whitespace", "acme idp", false},
		{"slash", "acme/idp", false},
		{"too long", strings.Repeat("a", MaxIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Result
			r.CheckID("id", tt.value)
			assert.Equal(t, tt.valid, r.Valid())
		})
	}
}

func TestCheckRemoteIDs(t *testing.T) {
	var r Result
	r.CheckRemoteIDs("remote_ids", []string{"https://idp.example.com", "urn:idp:other"})
	assert.True(t, r.Valid())

	r = Result{}
	r.CheckRemoteIDs("remote_ids", []string{"a", "a"})
	assert.False(t, r.Valid())
	assert.Contains(t, r.Err().Error(), "duplicate")

	r = Result{}
	r.CheckRemoteIDs("remote_ids", []string{""})
	assert.False(t, r.Valid())
}

func TestCheckURL(t *testing.T) {
	var r Result
	r.CheckURL("auth_url", "https://sp.example.com/Shibboleth.sso/SAML2/ECP")
	assert.True(t, r.Valid())

	r = Result{}
	r.CheckURL("auth_url", "ftp://sp.example.com")
	assert.False(t, r.Valid())

	r = Result{}
	r.CheckURL("auth_url", "")
	assert.False(t, r.Valid())
}

func TestErrAggregatesFields(t *testing.T) {
	var r Result
	r.CheckID("id", "")
	r.CheckURL("sp_url", "")
	err := r.Err()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "id:")
	assert.Contains(t, err.Error(), "sp_url:")
}

func TestCheckDescription(t *testing.T) {
	var r Result
	r.CheckDescription("description", strings.Repeat("x", MaxDescriptionLength))
	assert.True(t, r.Valid())

	r = Result{}
	r.CheckDescription("description", strings.Repeat("x", MaxDescriptionLength+1))
	assert.False(t, r.Valid())
}
