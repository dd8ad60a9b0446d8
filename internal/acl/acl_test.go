package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermittedTableDriven(t *testing.T) {
	tests := []struct {
		name      string
		members   []string
		policy    Policy
		candidate string
		want      bool
	}{
		{
			name:      "allow policy permits listed sender",
			members:   []string{"ops@example.com"},
			policy:    Allow,
			candidate: "ops@example.com",
			want:      true,
		},
		{
			name:      "allow policy denies unlisted sender",
			members:   []string{"ops@example.com"},
			policy:    Allow,
			candidate: "intruder@example.com",
			want:      false,
		},
		{
			name:      "block policy denies listed sender",
			members:   []string{"spammer@example.com"},
			policy:    Block,
			candidate: "spammer@example.com",
			want:      false,
		},
		{
			name:      "block policy permits unlisted sender",
			members:   []string{"spammer@example.com"},
			policy:    Block,
			candidate: "ops@example.com",
			want:      true,
		},
		{
			name:      "allow policy over empty list denies everything",
			members:   nil,
			policy:    Allow,
			candidate: "anyone@example.com",
			want:      false,
		},
		{
			name:      "block policy over empty list permits everything",
			members:   nil,
			policy:    Block,
			candidate: "anyone@example.com",
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := NewAddressList(tt.members...)
			assert.Equal(t, tt.want, Permitted(tt.candidate, list, tt.policy))
		})
	}
}

func TestAddressMatchingIsCaseInsensitive(t *testing.T) {
	list := NewAddressList("Ops@Example.COM")

	assert.True(t, list.Contains("ops@example.com"))
	assert.True(t, Permitted("OPS@EXAMPLE.COM", list, Allow))
}

func TestMediaTypeMatchingIsExact(t *testing.T) {
	list := NewMediaTypeList("application/pdf")

	assert.True(t, list.Contains("application/pdf"))
	assert.False(t, list.Contains("Application/PDF"))
}

func TestAddIgnoresEmptyValues(t *testing.T) {
	list := NewAddressList()
	list.Add("")

	assert.Equal(t, 0, list.Len())
}

func TestValidPair(t *testing.T) {
	assert.False(t, ValidPair(NewAddressList(), Allow))
	assert.True(t, ValidPair(NewAddressList(), Block))
	assert.True(t, ValidPair(NewAddressList("a@b.c"), Allow))
}
