package intent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Sagasu/internal/sagasu/observability"
)

// querySchema is the contract the LLM fallback's output must satisfy before
// it is trusted.  Anything that fails validation — wrong intent value, days
// as a string, extra nonsense — is discarded in favour of the default lookup.
const querySchema = `{
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {
      "type": "string",
      "enum": [
        "user_or_asset_lookup",
        "license_expiry",
        "old_laptops",
        "location_assets",
        "group_assets",
        "vendor_assets",
        "age_assets"
      ]
    },
    "days":     {"type": "integer", "minimum": 0},
    "years":    {"type": "integer", "minimum": 0},
    "location": {"type": "string"},
    "group":    {"type": "string"},
    "vendor":   {"type": "string"},
    "query":    {"type": "string"}
  }
}`

var compiledQuerySchema = jsonschema.MustCompileString("query.schema.json", querySchema)

// Classifier is the full rule-then-fallback classification chain.
//
// The zero-value-ish construction (nil provider) is valid and yields a purely
// deterministic classifier.
type Classifier struct {
	provider Provider
	keywords *Keywords
}

// NewClassifier builds a Classifier.  provider may be nil, in which case
// unmatched text goes straight to the default lookup.  keywords may be nil to
// use the built-in defaults.
func NewClassifier(provider Provider, keywords *Keywords) *Classifier {
	if keywords == nil {
		keywords = DefaultKeywords()
	}
	return &Classifier{provider: provider, keywords: keywords}
}

// Keywords exposes the active keyword sets (the aggregator shares the brand
// and category lists for laptop classification).
func (c *Classifier) Keywords() *Keywords {
	return c.keywords
}

// Classify turns free text into a Query.  It never fails: rule misses fall
// through to the LLM provider, and any provider failure — unreachable
// service, malformed JSON, schema violation, unknown intent — degrades to
// the default user-or-asset lookup carrying the cleaned text.
func (c *Classifier) Classify(ctx context.Context, text string) Query {
	cleaned := CleanText(text)

	if q, ok := classifyByRules(cleaned, c.keywords); ok {
		return q
	}

	if c.provider == nil {
		return Lookup(cleaned)
	}

	raw, err := c.provider.Classify(ctx, cleaned)
	if err != nil {
		observability.WithTrace(ctx).Warn("intent: fallback provider failed", "err", err)
		return Lookup(cleaned)
	}

	q, err := decodeQuery(raw)
	if err != nil {
		observability.WithTrace(ctx).Warn("intent: discarding invalid provider output", "err", err)
		return Lookup(cleaned)
	}

	applyDefaults(&q, cleaned)
	return q
}

// decodeQuery validates raw against the query schema and unmarshals it.
func decodeQuery(raw string) (Query, error) {
	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return Query{}, err
	}
	if err := compiledQuerySchema.Validate(generic); err != nil {
		return Query{}, err
	}

	var q Query
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return Query{}, err
	}
	return q, nil
}

// applyDefaults fills the numeric defaults and guards against a structurally
// valid but semantically empty response.
func applyDefaults(q *Query, cleaned string) {
	switch q.Kind {
	case KindLicenseExpiry:
		if q.Days <= 0 {
			q.Days = DefaultExpiryDays
		}
	case KindOldLaptops, KindAgeAssets:
		if q.Years <= 0 {
			q.Years = DefaultLaptopYears
		}
	case KindUserOrAssetLookup:
		if q.Text == "" {
			q.Text = cleaned
		}
	case KindLocationAssets:
		if q.Location == "" {
			*q = Lookup(cleaned)
		}
	case KindGroupAssets:
		if q.Group == "" {
			*q = Lookup(cleaned)
		}
	case KindVendorAssets:
		if q.Vendor == "" {
			*q = Lookup(cleaned)
		}
	default:
		slog.Warn("intent: provider produced unknown kind past schema validation", "kind", q.Kind)
		*q = Lookup(cleaned)
	}
}
