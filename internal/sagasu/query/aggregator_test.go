package query

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bdobrica/Sagasu/internal/sagasu/directory"
	"github.com/bdobrica/Sagasu/internal/sagasu/intent"
	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

// fixedNow keeps cutoff arithmetic deterministic.
var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

// inventoryHandler is a fake tenant API covering the endpoints the
// aggregator drives.
func inventoryHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/members", func(w http.ResponseWriter, r *http.Request) {
		search := r.URL.Query().Get("search")
		if search == "george.li@example.com" {
			fmt.Fprint(w, `{"members":[
				{"id":11,"first_name":"George","last_name":"Li","email":"george.li@example.com","status":"active"},
				{"id":12,"first_name":"Georgeanne","last_name":"Lind","email":"georgeanne.lind@example.com","status":"active"}
			]}`)
			return
		}
		// Directory listing for the resolver.
		fmt.Fprint(w, `{"members":[
			{"id":11,"first_name":"George","last_name":"Li","email":"george.li@example.com","status":"active"},
			{"id":13,"first_name":"George","last_name":"Chen","email":"george.chen@example.com","status":"active"},
			{"id":14,"first_name":"Anna","last_name":"Wang","email":"anna.wang@example.com","status":"active"}
		]}`)
	})

	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("assigned_to") == "11" {
			fmt.Fprint(w, `{"assets":[
				{"id":1,"name":"MacBook Pro 14","identifier":"TW012","serial_number":"C02AA11111","purchase_date":"2021-06-15","location_name":"TW"}
			]}`)
			return
		}
		if r.URL.Query().Get("assigned_to") != "" {
			fmt.Fprint(w, `{"assets":[]}`)
			return
		}
		// The full scan: a mix of locations, brands and purchase dates.
		fmt.Fprint(w, `{"assets":[
			{"id":1,"name":"Apple MacBook Pro 14","group":{"name":"Laptops"},"purchase_date":"2021-06-15","location_name":"TW","manufacturer":"Apple"},
			{"id":2,"name":"Lenovo ThinkPad X1","group":{"name":"Notebook"},"purchase_date":"2025-11-01","location_name":"TW","manufacturer":"Lenovo"},
			{"id":3,"name":"HP LaserJet","group":{"name":"Printers"},"purchase_date":"2019-01-10","location_name":"US","manufacturer":"HP"},
			{"id":4,"name":"Dell Latitude laptop","group":{"name":"Laptops"},"location_name":"US","manufacturer":"Dell"},
			{"id":5,"name":"Standing Desk","group":{"name":"Furniture"},"purchase_date":"2018-03-03","location_name":"tw"}
		]}`)
	})

	mux.HandleFunc("/software_licenses/filter", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		// License 100 appears on both pages to simulate API inconsistency;
		// license 102 is outside the cutoff and must be re-validated away.
		switch page {
		case "1":
			fmt.Fprint(w, `{"software_licenses":[
				{"id":100,"name":"Photoshop","expiry_date":"2026-02-01","vendor":"Adobe"},
				{"id":101,"name":"Office 365","expiry_date":"2026-01-20","vendor":"Microsoft"}
			],"total_pages":2}`)
		case "2":
			fmt.Fprint(w, `{"software_licenses":[
				{"id":100,"name":"Photoshop","expiry_date":"2026-02-01","vendor":"Adobe"},
				{"id":102,"name":"AutoCAD","expiry_date":"2027-06-01","vendor":"Autodesk"},
				{"id":103,"name":"Tableau","expiry_date":"not a date","vendor":"Salesforce"}
			],"total_pages":2}`)
		default:
			fmt.Fprint(w, `{"software_licenses":[],"total_pages":2}`)
		}
	})

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search") == "TW012" {
			fmt.Fprint(w, `{"assets":[
				{"id":1,"name":"MacBook Pro 14","identifier":"TW012","serial_number":"C02AA11111"}
			]}`)
			return
		}
		fmt.Fprint(w, `{"assets":[]}`)
	})

	return mux
}

// newTestAggregator wires a real sonar.Client against the fake API.
func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	srv := httptest.NewServer(inventoryHandler(t))
	t.Cleanup(srv.Close)

	client := sonar.New(sonar.Config{BaseURL: srv.URL, Token: "t", PageSize: 25})
	cache := directory.NewCache(client, time.Hour)
	resolver := directory.NewResolver(cache, 0)

	agg := New(client, resolver, nil, 0)
	agg.now = func() time.Time { return fixedNow }
	return agg
}

func TestLicensesExpiringDedupedValidatedSorted(t *testing.T) {
	agg := newTestAggregator(t)

	licenses, err := agg.LicensesExpiring(context.Background(), 30)
	if err != nil {
		t.Fatalf("LicensesExpiring: %v", err)
	}

	// 100 deduped, 102 beyond cutoff, 103 unknown date → two remain,
	// ascending by expiry.
	if len(licenses) != 2 {
		t.Fatalf("got %d licenses, want 2: %+v", len(licenses), licenses)
	}
	if licenses[0].ID != 101 || licenses[1].ID != 100 {
		t.Errorf("order = %d,%d; want 101,100 (ascending expiry)", licenses[0].ID, licenses[1].ID)
	}
}

func TestOldLaptopsHeuristicAndCutoff(t *testing.T) {
	agg := newTestAggregator(t)

	assets, err := agg.OldLaptops(context.Background(), 3)
	if err != nil {
		t.Fatalf("OldLaptops: %v", err)
	}

	// Asset 1 (Apple + Laptops group, 2021) qualifies.  Asset 2 is too new.
	// Asset 3 is HP but its name/group carry no category keyword.  Asset 4
	// matches the heuristic but has an unknown purchase date.  Asset 5 is
	// neither.
	if len(assets) != 1 || assets[0].ID != 1 {
		t.Fatalf("got %+v, want only asset 1", assets)
	}
}

func TestAssetsAtLocationCaseInsensitive(t *testing.T) {
	agg := newTestAggregator(t)

	assets, err := agg.AssetsAtLocation(context.Background(), "tw")
	if err != nil {
		t.Fatalf("AssetsAtLocation: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("got %d assets, want 3 (TW, TW, tw)", len(assets))
	}
}

func TestAssetsInGroup(t *testing.T) {
	agg := newTestAggregator(t)

	assets, err := agg.AssetsInGroup(context.Background(), "laptops")
	if err != nil {
		t.Fatalf("AssetsInGroup: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("got %d assets, want 2 in group Laptops", len(assets))
	}
}

func TestAssetsByVendorSubstring(t *testing.T) {
	agg := newTestAggregator(t)

	assets, err := agg.AssetsByVendor(context.Background(), "lenovo")
	if err != nil {
		t.Fatalf("AssetsByVendor: %v", err)
	}
	if len(assets) != 1 || assets[0].ID != 2 {
		t.Fatalf("got %+v, want only asset 2", assets)
	}
}

func TestAssetsOlderThanIgnoresUnknownDates(t *testing.T) {
	agg := newTestAggregator(t)

	assets, err := agg.AssetsOlderThan(context.Background(), 3)
	if err != nil {
		t.Fatalf("AssetsOlderThan: %v", err)
	}
	// Assets 1, 3, 5 are old enough; asset 4 has no date and is excluded.
	if len(assets) != 3 {
		t.Fatalf("got %d assets, want 3", len(assets))
	}
}

func TestLookupEmailFastPath(t *testing.T) {
	agg := newTestAggregator(t)

	out, err := agg.Lookup(context.Background(), intent.Lookup("george.li@example.com"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if out.Member == nil || out.Member.ID != 11 {
		t.Fatalf("Member = %+v, want id 11 (exact email match, not the search's fuzzy hit)", out.Member)
	}
	if len(out.Assets) != 1 || out.Assets[0].AIN != "TW012" {
		t.Errorf("Assets = %+v, want the possession TW012", out.Assets)
	}
}

func TestLookupAssetTagQuickSearch(t *testing.T) {
	agg := newTestAggregator(t)

	out, err := agg.Lookup(context.Background(), intent.Lookup("TW012"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if out.Member != nil {
		t.Errorf("Member = %+v, want nil for tag lookup", out.Member)
	}
	if len(out.Assets) != 1 || out.Assets[0].ID != 1 {
		t.Errorf("Assets = %+v, want asset 1", out.Assets)
	}
}

func TestLookupUniqueNameResolvesToPossessions(t *testing.T) {
	agg := newTestAggregator(t)

	out, err := agg.Lookup(context.Background(), intent.Lookup("George Li"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if out.NeedsDisambiguation() {
		t.Fatalf("unexpected disambiguation: %+v", out.Candidates)
	}
	if out.Member == nil || out.Member.ID != 11 {
		t.Fatalf("Member = %+v, want George Li (11)", out.Member)
	}
	if len(out.Assets) != 1 {
		t.Errorf("Assets = %+v, want 1 possession", out.Assets)
	}
}

func TestLookupAmbiguousNamePausesForDisambiguation(t *testing.T) {
	agg := newTestAggregator(t)

	out, err := agg.Lookup(context.Background(), intent.Lookup("George"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !out.NeedsDisambiguation() {
		t.Fatalf("expected disambiguation, got %+v", out)
	}
	if len(out.Candidates) != 2 {
		t.Errorf("got %d candidates, want George Li and George Chen", len(out.Candidates))
	}
	if out.Member != nil || len(out.Assets) != 0 {
		t.Error("a paused lookup must not fetch any records")
	}
}

func TestRunDispatchesByKind(t *testing.T) {
	agg := newTestAggregator(t)

	out, err := agg.Run(context.Background(), intent.Query{Kind: intent.KindLicenseExpiry, Days: 30})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Licenses) == 0 {
		t.Error("Run(license_expiry) returned no licenses")
	}

	out, err = agg.Run(context.Background(), intent.Query{Kind: intent.KindLocationAssets, Location: "TW"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Assets) != 3 {
		t.Errorf("Run(location_assets) = %d assets, want 3", len(out.Assets))
	}
}

func TestMaxPagesCapsFullScans(t *testing.T) {
	var pagesSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesSeen = append(pagesSeen, r.URL.Query().Get("page"))
		// total_pages is deliberately far beyond the cap so the scan would
		// keep going without it.
		fmt.Fprint(w, `{"software_licenses":[
			{"id":100,"name":"Photoshop","expiry_date":"2026-02-01","vendor":"Adobe"}
		],"total_pages":50}`)
	}))
	t.Cleanup(srv.Close)

	client := sonar.New(sonar.Config{BaseURL: srv.URL, Token: "t", PageSize: 25})
	cache := directory.NewCache(client, time.Hour)
	agg := New(client, directory.NewResolver(cache, 0), nil, 2)
	agg.now = func() time.Time { return fixedNow }

	if _, err := agg.LicensesExpiring(context.Background(), 30); err != nil {
		t.Fatalf("LicensesExpiring: %v", err)
	}
	if len(pagesSeen) != 2 {
		t.Fatalf("fetched pages %v, want exactly [1 2]", pagesSeen)
	}
}
