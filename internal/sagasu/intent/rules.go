package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// A matcher is one deterministic classification rule: a pure
// predicate-plus-extractor evaluated against the cleaned input text.
// Matchers run in order; the first match wins.
type matcher struct {
	name  string
	match func(raw, lower string, kw *Keywords) (Query, bool)
}

// rules is the ordered rule chain.  The email rule is intentionally first and
// unconditional: an email in the text always means a user lookup, regardless
// of any other keywords present.
var rules = []matcher{
	{name: "email", match: matchEmail},
	{name: "license_expiry", match: matchLicenseExpiry},
	{name: "location_assets", match: matchLocationAssets},
	{name: "old_laptops", match: matchOldLaptops},
}

var (
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	integerRe  = regexp.MustCompile(`\d+`)
	locationRe = regexp.MustCompile(`\b[A-Z]{2}\b`)
	markup     = strings.NewReplacer("*", "", "_", "", "`", "")
)

// CleanText strips chat markup characters and trims whitespace.
func CleanText(text string) string {
	return strings.TrimSpace(markup.Replace(text))
}

// firstInteger extracts the first integer in the text; when several integers
// are present the first occurrence wins.
func firstInteger(lower string, fallback int) int {
	m := integerRe.FindString(lower)
	if m == "" {
		return fallback
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return fallback
	}
	return n
}

// containsAny reports whether lower contains any of the keywords as a plain
// substring.
func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// ExtractEmail returns the first email-shaped substring in text, or "".
func ExtractEmail(text string) string {
	return emailRe.FindString(text)
}

func matchEmail(raw, lower string, _ *Keywords) (Query, bool) {
	email := emailRe.FindString(raw)
	if email == "" {
		return Query{}, false
	}
	return Query{Kind: KindUserOrAssetLookup, Text: email, AllFields: true}, true
}

func matchLicenseExpiry(_, lower string, kw *Keywords) (Query, bool) {
	if !containsAny(lower, kw.License) {
		return Query{}, false
	}
	return Query{Kind: KindLicenseExpiry, Days: firstInteger(lower, DefaultExpiryDays)}, true
}

func matchLocationAssets(raw, lower string, kw *Keywords) (Query, bool) {
	if !containsAny(lower, kw.Device) {
		return Query{}, false
	}
	// The location token is matched against the original casing: "in TW"
	// carries a location, "the new switch" does not.
	loc := locationRe.FindString(raw)
	if loc == "" {
		return Query{}, false
	}
	return Query{Kind: KindLocationAssets, Location: loc}, true
}

func matchOldLaptops(_, lower string, kw *Keywords) (Query, bool) {
	if !containsAny(lower, kw.Laptop) || !containsAny(lower, kw.AgeQualifier) {
		return Query{}, false
	}
	return Query{Kind: KindOldLaptops, Years: firstInteger(lower, DefaultLaptopYears)}, true
}

// classifyByRules runs the rule chain over the cleaned text.  Returns false
// when no rule matched.
func classifyByRules(text string, kw *Keywords) (Query, bool) {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		if q, ok := rule.match(text, lower, kw); ok {
			return q, true
		}
	}
	return Query{}, false
}
