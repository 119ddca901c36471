// Package intent turns free-form chat text into one of a fixed set of
// structured inventory queries.
//
// Classification is rule-first: an ordered list of cheap deterministic
// matchers is tried before any LLM is consulted, and the LLM fallback's
// output is schema-validated before it is trusted.  Classify never fails —
// the worst case for any input is the default user-or-asset lookup carrying
// the raw text.
package intent

import "fmt"

// Kind identifies which aggregation procedure a query selects.
type Kind string

const (
	KindUserOrAssetLookup Kind = "user_or_asset_lookup"
	KindLicenseExpiry     Kind = "license_expiry"
	KindOldLaptops        Kind = "old_laptops"
	KindLocationAssets    Kind = "location_assets"
	KindGroupAssets       Kind = "group_assets"
	KindVendorAssets      Kind = "vendor_assets"
	KindAgeAssets         Kind = "age_assets"
)

// Kinds lists every valid query kind.
var Kinds = []Kind{
	KindUserOrAssetLookup,
	KindLicenseExpiry,
	KindOldLaptops,
	KindLocationAssets,
	KindGroupAssets,
	KindVendorAssets,
	KindAgeAssets,
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Defaults applied when a rule or the LLM omits a numeric parameter.
const (
	DefaultExpiryDays  = 30
	DefaultLaptopYears = 3
)

// Query is a classified inventory request.  The JSON tags describe the wire
// shape the LLM fallback is asked to produce; rule matchers build the struct
// directly.
type Query struct {
	Kind     Kind   `json:"intent"`
	Days     int    `json:"days,omitempty"`
	Years    int    `json:"years,omitempty"`
	Location string `json:"location,omitempty"`
	Group    string `json:"group,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
	Text     string `json:"query,omitempty"`

	// AllFields forces the full asset field set in the reply.  Set by the
	// email rule; never produced by the LLM.
	AllFields bool `json:"-"`
}

// Lookup returns the default query for unclassifiable text.
func Lookup(text string) Query {
	return Query{Kind: KindUserOrAssetLookup, Text: text}
}

func (q Query) String() string {
	switch q.Kind {
	case KindLicenseExpiry:
		return fmt.Sprintf("licenses expiring within %d days", q.Days)
	case KindOldLaptops:
		return fmt.Sprintf("laptops older than %d years", q.Years)
	case KindLocationAssets:
		return fmt.Sprintf("assets at location %s", q.Location)
	case KindGroupAssets:
		return fmt.Sprintf("assets in group %s", q.Group)
	case KindVendorAssets:
		return fmt.Sprintf("assets from vendor %s", q.Vendor)
	case KindAgeAssets:
		return fmt.Sprintf("assets older than %d years", q.Years)
	default:
		return fmt.Sprintf("lookup %q", q.Text)
	}
}
