// Package builtin contains the stock standardizers and validators that can
// be referenced by kind from a policy document. Importing the package (even
// blank) registers every kind with the policy loader.
//
// The set is closed by design: a policy document naming a kind that is not
// registered here (or by another wiring package) fails at load time, not
// while rows are being processed.
package builtin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"cleanse/internal/config"
	"cleanse/internal/policy"
)

func init() {
	policy.RegisterStandardizer("trim", func(config.Options) (policy.Standardizer, error) {
		return Trim{}, nil
	})
	policy.RegisterStandardizer("uppercase", func(config.Options) (policy.Standardizer, error) {
		return Case{Upper: true}, nil
	})
	policy.RegisterStandardizer("lowercase", func(config.Options) (policy.Standardizer, error) {
		return Case{}, nil
	})
	policy.RegisterStandardizer("strip_diacritics", func(config.Options) (policy.Standardizer, error) {
		return newStripDiacritics(), nil
	})
	policy.RegisterStandardizer("mask", newMask)
	policy.RegisterStandardizer("default", newDefaultValue)
	policy.RegisterStandardizer("hash", newHashToken)
}

// Trim removes leading and trailing whitespace.
type Trim struct{}

func (Trim) Name() string            { return "trim" }
func (Trim) AcceptsEmpty() bool      { return false }
func (Trim) Convert(s string) string { return strings.TrimSpace(s) }

// Case folds a value to a single case.
type Case struct {
	Upper bool
}

func (c Case) Name() string {
	if c.Upper {
		return "uppercase"
	}
	return "lowercase"
}
func (Case) AcceptsEmpty() bool { return false }
func (c Case) Convert(s string) string {
	if c.Upper {
		return strings.ToUpper(s)
	}
	return strings.ToLower(s)
}

// StripDiacritics removes combining marks after NFD decomposition, so that
// "Škoda" standardizes to "Skoda". The transformer chain is built once and
// reused; transform.String is safe for concurrent use with an immutable chain.
type StripDiacritics struct {
	chain transform.Transformer
}

func newStripDiacritics() StripDiacritics {
	return StripDiacritics{
		chain: transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
	}
}

func (StripDiacritics) Name() string       { return "strip_diacritics" }
func (StripDiacritics) AcceptsEmpty() bool { return false }
func (d StripDiacritics) Convert(s string) string {
	out, _, err := transform.String(d.chain, s)
	if err != nil {
		return s
	}
	return out
}

// Mask replaces every match of a pattern with a surrogate, e.g. masking all
// non-whitespace characters of a PII column with "*".
type Mask struct {
	Pattern   *regexp.Regexp
	Surrogate string
}

func newMask(opts config.Options) (policy.Standardizer, error) {
	pat := opts.String("pattern", `[^\s]`)
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pat, err)
	}
	return Mask{Pattern: re, Surrogate: opts.String("surrogate", "*")}, nil
}

func (Mask) Name() string       { return "mask" }
func (Mask) AcceptsEmpty() bool { return false }
func (m Mask) Convert(s string) string {
	return m.Pattern.ReplaceAllString(s, m.Surrogate)
}

// DefaultValue substitutes a configured value for empty input. It is the
// one stock standardizer that accepts empty values; without that capability
// the chain would skip it exactly when it is needed.
type DefaultValue struct {
	Value string
}

func newDefaultValue(opts config.Options) (policy.Standardizer, error) {
	if !opts.Has("value") {
		return nil, fmt.Errorf(`"default" requires a "value" option`)
	}
	return DefaultValue{Value: opts.String("value", "")}, nil
}

func (DefaultValue) Name() string       { return "default" }
func (DefaultValue) AcceptsEmpty() bool { return true }
func (d DefaultValue) Convert(s string) string {
	if s == "" {
		return d.Value
	}
	return s
}

// HashToken replaces a value with a stable pseudonymous token derived from
// its xxh3 hash. Equal inputs map to equal tokens, so the column remains
// usable as a join/group key after tokenization.
type HashToken struct {
	Prefix string
}

func newHashToken(opts config.Options) (policy.Standardizer, error) {
	return HashToken{Prefix: opts.String("prefix", "tok_")}, nil
}

func (HashToken) Name() string       { return "hash" }
func (HashToken) AcceptsEmpty() bool { return false }
func (h HashToken) Convert(s string) string {
	return h.Prefix + strconv.FormatUint(xxh3.HashString(s), 16)
}
