package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare", "Submissions@Acme.Portal.com", "submissions@acme.portal.com"},
		{"display name", "Jane Doe <Jane+acme-subs@Portal.com>", "jane+acme-subs@portal.com"},
		{"quoted display name", `"Doe, Jane" <jane@portal.com>`, "jane@portal.com"},
		{"whitespace", "  user@host.com  ", "user@host.com"},
		{"empty", "", ""},
		{"no at sign", "not-an-address", ""},
		{"two at signs", "a@b@c", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAddress(tt.input))
		})
	}
}

func TestSplitAddress(t *testing.T) {
	local, domain, ok := SplitAddress("docs+acme-sub@portal.com")
	assert.True(t, ok)
	assert.Equal(t, "docs+acme-sub", local)
	assert.Equal(t, "portal.com", domain)

	_, _, ok = SplitAddress("@portal.com")
	assert.False(t, ok)
	_, _, ok = SplitAddress("user@")
	assert.False(t, ok)
}

func TestUniqueAddresses(t *testing.T) {
	result := UniqueAddresses([]string{"A@x.com", "a@x.com", "Bob <b@x.com>", "", "junk"})
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, result)
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "pdf", FileExtension("Policy.PDF", "application/octet-stream"))
	assert.Equal(t, "docx", FileExtension("", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	assert.Equal(t, "bin", FileExtension("", "application/x-unknown"))
}

func TestMaxTime(t *testing.T) {
	now := Now()
	earlier := now.Add(-1)
	assert.Equal(t, now, MaxTime(nil, now))
	assert.Equal(t, now, MaxTime(&now, earlier))
	assert.Equal(t, now, MaxTime(&earlier, now))
}
