package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivation_Derive(t *testing.T) {
	tests := []struct {
		name     string
		d        Derivation
		input    any
		expected Key
	}{
		{
			name:     "local part of an address",
			d:        Derivation{Kind: DeriveLocalPart, Source: "email", Target: "email_local"},
			input:    "Jane.Doe@Example.com",
			expected: "jane.doe",
		},
		{
			name:     "local part of a non-address is absent",
			d:        Derivation{Kind: DeriveLocalPart, Source: "email", Target: "email_local"},
			input:    "jane",
			expected: Absent,
		},
		{
			name:     "partner domain rewritten to employee domain",
			d:        Derivation{Kind: DeriveDomainRewrite, Source: "email", Target: "email_employee", From: "partner.example.com", To: "example.com"},
			input:    "J.Doe@partner.example.com",
			expected: "j.doe@example.com",
		},
		{
			name:     "other domains are absent after rewrite",
			d:        Derivation{Kind: DeriveDomainRewrite, Source: "email", Target: "email_employee", From: "partner.example.com", To: "example.com"},
			input:    "j.doe@example.com",
			expected: Absent,
		},
		{
			name:     "realm prefix stripped",
			d:        Derivation{Kind: DeriveStripRealm, Source: "user_name", Target: "login"},
			input:    `CORP\JDoe`,
			expected: "jdoe",
		},
		{
			name:     "realm suffix stripped",
			d:        Derivation{Kind: DeriveStripRealm, Source: "user_name", Target: "login"},
			input:    "jdoe@CORP.EXAMPLE.COM",
			expected: "jdoe",
		},
		{
			name:     "names fold diacritics and whitespace",
			d:        Derivation{Kind: DeriveNameFold, Source: "display_name", Target: "badge_key"},
			input:    "  José   Núñez ",
			expected: "jose nunez",
		},
		{
			name:     "null source is absent",
			d:        Derivation{Kind: DeriveLocalPart, Source: "email", Target: "email_local"},
			input:    nil,
			expected: Absent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.d.Derive(tt.input))
		})
	}
}

func TestDerivation_Validate(t *testing.T) {
	t.Run("unknown kind rejected", func(t *testing.T) {
		err := Derivation{Kind: "soundex", Source: "a", Target: "b"}.validate()
		assert.ErrorIs(t, err, ErrInvalidPlan)
	})

	t.Run("target equal to source rejected", func(t *testing.T) {
		err := Derivation{Kind: DeriveLocalPart, Source: "email", Target: "email"}.validate()
		assert.ErrorIs(t, err, ErrInvalidPlan)
	})

	t.Run("domain rewrite needs both domains", func(t *testing.T) {
		err := Derivation{Kind: DeriveDomainRewrite, Source: "email", Target: "e2", From: "a.com"}.validate()
		assert.ErrorIs(t, err, ErrInvalidPlan)
	})
}
