package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"rosterlink/pkg/email"
)

// DerivationKind names an alternate-key transform.
type DerivationKind string

const (
	// DeriveLocalPart extracts the local-part of an email address.
	DeriveLocalPart DerivationKind = "local_part"
	// DeriveDomainRewrite swaps a partner email domain for the employee domain.
	DeriveDomainRewrite DerivationKind = "domain_rewrite"
	// DeriveStripRealm drops a DOMAIN\ prefix and an @realm suffix from a login.
	DeriveStripRealm DerivationKind = "strip_realm"
	// DeriveNameFold strips diacritics and collapses whitespace in a display name.
	DeriveNameFold DerivationKind = "name_fold"
)

// Derivation computes an auxiliary subject key from Source into Target.
// Target never replaces a subject column. From and To apply to domain_rewrite only.
type Derivation struct {
	Kind   DerivationKind
	Source string
	Target string
	From   string
	To     string
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func (d Derivation) validate() error {
	if d.Source == "" || d.Target == "" {
		return planError("derivation %q needs source and target", d.Kind)
	}
	if d.Source == d.Target {
		return planError("derivation %q would overwrite %q", d.Kind, d.Source)
	}
	switch d.Kind {
	case DeriveLocalPart, DeriveStripRealm, DeriveNameFold:
		return nil
	case DeriveDomainRewrite:
		if d.From == "" || d.To == "" {
			return planError("domain_rewrite %q needs from and to domains", d.Target)
		}
		return nil
	default:
		return planError("unknown derivation kind %q", d.Kind)
	}
}

// Derive returns the derived key for a raw source value.
func (d Derivation) Derive(raw any) Key {
	s, ok := scalarString(raw)
	if !ok {
		return Absent
	}
	switch d.Kind {
	case DeriveLocalPart:
		local, ok := email.LocalPart(s)
		if !ok {
			return Absent
		}
		return Normalize(local)
	case DeriveDomainRewrite:
		rewritten, ok := email.RewriteDomain(s, d.From, d.To)
		if !ok {
			return Absent
		}
		return Normalize(rewritten)
	case DeriveStripRealm:
		return Normalize(stripRealm(s))
	case DeriveNameFold:
		return Normalize(foldName(s))
	default:
		return Absent
	}
}

func stripRealm(login string) string {
	s := strings.TrimSpace(login)
	if i := strings.LastIndexByte(s, '\\'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return s
}

// foldName decomposes to NFD and drops combining marks, so accented and
// unaccented spellings of a badge name share a key.
func foldName(name string) string {
	decomposed := norm.NFD.String(name)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(b.String()), " ")
}
