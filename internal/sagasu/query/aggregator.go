// Package query drives the per-intent aggregation procedures: paginated
// remote fetches, local filter predicates, and dedup by record id.
package query

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bdobrica/Sagasu/internal/sagasu/directory"
	"github.com/bdobrica/Sagasu/internal/sagasu/intent"
	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

// ainRe matches a tenant asset tag: two letters followed by at least three
// digits.
var ainRe = regexp.MustCompile(`^[A-Za-z]{2}\d{3,}$`)

// serialRe matches a plausible serial number: alphanumeric and longer than
// six characters.
var serialRe = regexp.MustCompile(`^[A-Za-z0-9]{7,}$`)

// Outcome is the result of one aggregation run.  Exactly one of the record
// slices is populated for a given query kind; a non-empty Candidates slice
// means the pipeline is paused pending user disambiguation.
type Outcome struct {
	Query      intent.Query
	Member     *sonar.Member
	Assets     []sonar.Asset
	Licenses   []sonar.License
	Candidates []directory.Candidate
}

// NeedsDisambiguation reports whether the caller must present a candidate
// choice before any records can be fetched.
func (o *Outcome) NeedsDisambiguation() bool {
	return len(o.Candidates) > 0
}

// Aggregator composes the remote client and the name resolver into one
// procedure per query kind.  Result sets are request-scoped: nothing is
// cached here across runs.
type Aggregator struct {
	client   *sonar.Client
	resolver *directory.Resolver
	keywords *intent.Keywords

	// now is injectable for deterministic cutoff tests.
	now func() time.Time

	// maxPages bounds full scans; 0 means unbounded.
	maxPages int
}

// New builds an Aggregator.  keywords may be nil for the defaults; maxPages
// caps every full scan, 0 means unbounded.
func New(client *sonar.Client, resolver *directory.Resolver, keywords *intent.Keywords, maxPages int) *Aggregator {
	if keywords == nil {
		keywords = intent.DefaultKeywords()
	}
	return &Aggregator{
		client:   client,
		resolver: resolver,
		keywords: keywords,
		now:      time.Now,
		maxPages: maxPages,
	}
}

// Run dispatches q to its aggregation procedure.
func (a *Aggregator) Run(ctx context.Context, q intent.Query) (*Outcome, error) {
	out := &Outcome{Query: q}
	var err error

	switch q.Kind {
	case intent.KindLicenseExpiry:
		out.Licenses, err = a.LicensesExpiring(ctx, q.Days)
	case intent.KindOldLaptops:
		out.Assets, err = a.OldLaptops(ctx, q.Years)
	case intent.KindLocationAssets:
		out.Assets, err = a.AssetsAtLocation(ctx, q.Location)
	case intent.KindGroupAssets:
		out.Assets, err = a.AssetsInGroup(ctx, q.Group)
	case intent.KindVendorAssets:
		out.Assets, err = a.AssetsByVendor(ctx, q.Vendor)
	case intent.KindAgeAssets:
		out.Assets, err = a.AssetsOlderThan(ctx, q.Years)
	default:
		return a.Lookup(ctx, q)
	}

	if err != nil {
		return nil, err
	}
	return out, nil
}

// LicensesExpiring pages through the server-side expiring-licenses filter,
// re-validates the cutoff locally (the server filter is not trusted to be
// exact), dedupes by license id across pages, and sorts ascending by expiry.
func (a *Aggregator) LicensesExpiring(ctx context.Context, days int) ([]sonar.License, error) {
	if days <= 0 {
		days = intent.DefaultExpiryDays
	}
	cutoff := a.now().AddDate(0, 0, days)

	params := url.Values{}
	params.Set("status", "expiring_in")
	params.Set("filter_param_val", strconv.Itoa(days))

	seen := make(map[int64]bool)
	var licenses []sonar.License
	err := a.client.Paginate(ctx, "/software_licenses/filter", params, a.maxPages, func(rec gjson.Result) error {
		lic := sonar.LicenseFromJSON(rec)
		if lic.ID != 0 && seen[lic.ID] {
			return nil
		}
		if lic.ID != 0 {
			seen[lic.ID] = true
		}
		// An unknown expiry date cannot be proven to fall inside the window.
		if lic.ExpiryDate.IsZero() || lic.ExpiryDate.After(cutoff) {
			return nil
		}
		licenses = append(licenses, lic)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expiring licenses: %w", err)
	}

	sort.SliceStable(licenses, func(i, j int) bool {
		return licenses[i].ExpiryDate.Before(licenses[j].ExpiryDate)
	})
	return licenses, nil
}

// OldLaptops scans all assets (no server-side filter exists for this),
// keeping laptop-ish records purchased at least years*365 days ago.
func (a *Aggregator) OldLaptops(ctx context.Context, years int) ([]sonar.Asset, error) {
	if years <= 0 {
		years = intent.DefaultLaptopYears
	}
	cutoff := a.now().Add(-time.Duration(years) * 365 * 24 * time.Hour)

	return a.scanAssets(ctx, func(asset sonar.Asset) bool {
		if !a.isLaptopish(asset) {
			return false
		}
		return !asset.PurchaseDate.IsZero() && !asset.PurchaseDate.After(cutoff)
	})
}

// isLaptopish applies the brand-AND-category substring heuristic against the
// asset's name and group name.  It is known to over-match administrative
// records ("HP printer" etc.); the behaviour is kept as-is on purpose.
func (a *Aggregator) isLaptopish(asset sonar.Asset) bool {
	hay := strings.ToLower(asset.Name + " " + asset.GroupName)
	return containsAny(hay, a.keywords.Brand) && containsAny(hay, a.keywords.Category)
}

// AssetsAtLocation scans all assets keeping those whose location matches
// case-insensitively.
func (a *Aggregator) AssetsAtLocation(ctx context.Context, location string) ([]sonar.Asset, error) {
	return a.scanAssets(ctx, func(asset sonar.Asset) bool {
		return strings.EqualFold(asset.LocationName, location)
	})
}

// AssetsInGroup scans all assets keeping those in the named group.
func (a *Aggregator) AssetsInGroup(ctx context.Context, group string) ([]sonar.Asset, error) {
	return a.scanAssets(ctx, func(asset sonar.Asset) bool {
		return strings.EqualFold(asset.GroupName, group)
	})
}

// AssetsByVendor scans all assets keeping those whose manufacturer contains
// the vendor name.
func (a *Aggregator) AssetsByVendor(ctx context.Context, vendor string) ([]sonar.Asset, error) {
	needle := strings.ToLower(vendor)
	return a.scanAssets(ctx, func(asset sonar.Asset) bool {
		return strings.Contains(strings.ToLower(asset.Manufacturer), needle)
	})
}

// AssetsOlderThan scans all assets keeping those purchased at least
// years*365 days ago, regardless of kind.
func (a *Aggregator) AssetsOlderThan(ctx context.Context, years int) ([]sonar.Asset, error) {
	if years <= 0 {
		years = intent.DefaultLaptopYears
	}
	cutoff := a.now().Add(-time.Duration(years) * 365 * 24 * time.Hour)

	return a.scanAssets(ctx, func(asset sonar.Asset) bool {
		return !asset.PurchaseDate.IsZero() && !asset.PurchaseDate.After(cutoff)
	})
}

// Lookup is the three-tier user-or-asset strategy: email fast path, asset
// tag / serial quick search, then person-name resolution which may pause for
// disambiguation.
func (a *Aggregator) Lookup(ctx context.Context, q intent.Query) (*Outcome, error) {
	out := &Outcome{Query: q}
	text := strings.TrimSpace(q.Text)

	// Tier (a): email → member-by-email → possessions.
	if email := intent.ExtractEmail(text); email != "" {
		member, err := a.MemberByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if member != nil {
			out.Member = member
			out.Assets, err = a.PossessionsOf(ctx, member.ID)
			return out, err
		}
		// No such member; fall through to an asset search on the raw text.
		var assets []sonar.Asset
		assets, err = a.quickSearch(ctx, email)
		out.Assets = assets
		return out, err
	}

	// Tier (b): looks like an asset tag or serial number.
	if ainRe.MatchString(text) || serialRe.MatchString(text) {
		assets, err := a.quickSearch(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(assets) > 0 {
			out.Assets = assets
			return out, nil
		}
		// Nothing matched the identifier facet; treat as a name after all.
	}

	// Tier (c): person name.
	res, err := a.resolver.ResolveByName(ctx, text)
	if err != nil {
		return nil, err
	}
	if res.Unique != nil {
		out.Member = res.Unique
		out.Assets, err = a.PossessionsOf(ctx, res.Unique.ID)
		return out, err
	}
	if len(res.Candidates) > 0 {
		out.Candidates = res.Candidates
		return out, nil
	}

	// Nobody matched the name; last resort is a plain asset search.
	out.Assets, err = a.quickSearch(ctx, text)
	return out, err
}

// MemberByEmail finds the directory member with the given email via the
// server-side search, or nil when none matches.
func (a *Aggregator) MemberByEmail(ctx context.Context, email string) (*sonar.Member, error) {
	params := url.Values{}
	params.Set("search", email)

	body, err := a.client.Get(ctx, "/members", params)
	if err != nil {
		return nil, fmt.Errorf("member by email: %w", err)
	}
	for _, rec := range sonar.Records(body) {
		m := sonar.MemberFromJSON(rec)
		if strings.EqualFold(m.Email, email) {
			return &m, nil
		}
	}
	return nil, nil
}

// PossessionsOf returns the assets currently assigned to the given member.
func (a *Aggregator) PossessionsOf(ctx context.Context, memberID int64) ([]sonar.Asset, error) {
	params := url.Values{}
	params.Set("assigned_to", strconv.FormatInt(memberID, 10))

	var assets []sonar.Asset
	err := a.client.Paginate(ctx, "/assets", params, a.maxPages, func(rec gjson.Result) error {
		assets = append(assets, sonar.AssetFromJSON(rec))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("possessions of member %d: %w", memberID, err)
	}
	return assets, nil
}

// quickSearch hits the combined search endpoint keyed on the identifier and
// serial facets.
func (a *Aggregator) quickSearch(ctx context.Context, text string) ([]sonar.Asset, error) {
	params := url.Values{}
	params.Set("search", text)

	var assets []sonar.Asset
	err := a.client.Paginate(ctx, "/search", params, a.maxPages, func(rec gjson.Result) error {
		assets = append(assets, sonar.AssetFromJSON(rec))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", text, err)
	}
	return assets, nil
}

// scanAssets pages through the full asset listing applying keep.
func (a *Aggregator) scanAssets(ctx context.Context, keep func(sonar.Asset) bool) ([]sonar.Asset, error) {
	var assets []sonar.Asset
	err := a.client.Paginate(ctx, "/assets", nil, a.maxPages, func(rec gjson.Result) error {
		asset := sonar.AssetFromJSON(rec)
		if keep(asset) {
			assets = append(assets, asset)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("asset scan: %w", err)
	}
	return assets, nil
}

func containsAny(hay string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(hay, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
