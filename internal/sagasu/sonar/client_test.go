package sonar_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

// newTestClient returns a Client pointed at the given handler with a small
// page size so pagination tests stay cheap.
func newTestClient(t *testing.T, handler http.Handler, pageSize int) *sonar.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return sonar.New(sonar.Config{
		BaseURL:  srv.URL,
		Token:    "test-token",
		PageSize: pageSize,
	})
}

func TestGetSendsTokenHeader(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"ok":true}`)
	}), 5)

	body, err := client.Get(context.Background(), "/assets", nil)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !body.Get("ok").Bool() {
		t.Errorf("unexpected body: %s", body.Raw)
	}
	if want := "Token token=test-token"; gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
}

func TestGetNonOKStatusReturnsAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tenant suspended", http.StatusForbidden)
	}), 5)

	_, err := client.Get(context.Background(), "/assets", nil)
	var apiErr *sonar.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", apiErr.Status)
	}
}

func TestGetRateLimitRetriesOnce(t *testing.T) {
	var calls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"assets":[]}`)
	}), 5)

	_, err := client.Get(context.Background(), "/assets", nil)
	if err != nil {
		t.Fatalf("Get returned error after recovered 429: %v", err)
	}
	if calls != 2 {
		t.Errorf("server saw %d calls, want 2", calls)
	}
}

func TestGetPersistentRateLimitSurfacesAPIError(t *testing.T) {
	var calls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}), 5)

	_, err := client.Get(context.Background(), "/assets", nil)
	var apiErr *sonar.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", apiErr.Status)
	}
	if calls != 2 {
		t.Errorf("server saw %d calls, want exactly 2 (one retry)", calls)
	}
}

// pagedHandler serves n records in pages of pageSize under the given wrapper
// key, optionally reporting total_pages.
func pagedHandler(key string, total, pageSize int, reportTotalPages bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		start := (page - 1) * pageSize
		end := start + pageSize
		if end > total {
			end = total
		}

		records := ""
		for i := start; i < end; i++ {
			if records != "" {
				records += ","
			}
			records += fmt.Sprintf(`{"id":%d,"name":"rec-%d"}`, i+1, i+1)
		}

		if reportTotalPages {
			pages := (total + pageSize - 1) / pageSize
			fmt.Fprintf(w, `{"%s":[%s],"total_pages":%d}`, key, records, pages)
			return
		}
		fmt.Fprintf(w, `{"%s":[%s]}`, key, records)
	})
}

func TestPaginateCollectsAllRecordsShortPageHeuristic(t *testing.T) {
	// 2 full pages of 5 plus a partial page of 3 → 13 records.
	client := newTestClient(t, pagedHandler("assets", 13, 5, false), 5)

	seen := map[int64]bool{}
	var order []int64
	err := client.Paginate(context.Background(), "/assets", nil, 0, func(rec gjson.Result) error {
		id := rec.Get("id").Int()
		if seen[id] {
			t.Errorf("record %d delivered twice", id)
		}
		seen[id] = true
		order = append(order, id)
		return nil
	})
	if err != nil {
		t.Fatalf("Paginate returned error: %v", err)
	}
	if len(order) != 13 {
		t.Fatalf("got %d records, want 13", len(order))
	}
	for i, id := range order {
		if id != int64(i+1) {
			t.Fatalf("record %d out of order: got id %d", i, id)
		}
	}
}

func TestPaginateStopsOnExplicitTotalPages(t *testing.T) {
	// 10 records in pages of 5: the final page is full, so only the explicit
	// total_pages field prevents a fetch of an empty page 3.
	var pagesServed int
	inner := pagedHandler("licenses", 10, 5, true)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		inner.ServeHTTP(w, r)
	}), 5)

	var count int
	err := client.Paginate(context.Background(), "/software_licenses", nil, 0, func(rec gjson.Result) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Paginate returned error: %v", err)
	}
	if count != 10 {
		t.Errorf("got %d records, want 10", count)
	}
	if pagesServed != 2 {
		t.Errorf("server served %d pages, want 2", pagesServed)
	}
}

func TestPaginateStopsOnEmptyFirstPage(t *testing.T) {
	client := newTestClient(t, pagedHandler("members", 0, 5, false), 5)

	var count int
	err := client.Paginate(context.Background(), "/members", nil, 0, func(rec gjson.Result) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Paginate returned error: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d records, want 0", count)
	}
}

func TestPaginateRespectsMaxPages(t *testing.T) {
	client := newTestClient(t, pagedHandler("assets", 100, 5, false), 5)

	var count int
	err := client.Paginate(context.Background(), "/assets", nil, 2, func(rec gjson.Result) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Paginate returned error: %v", err)
	}
	if count != 10 {
		t.Errorf("got %d records with maxPages=2, want 10", count)
	}
}

func TestPaginatePreservesCallerParams(t *testing.T) {
	var gotStatus string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStatus = r.URL.Query().Get("status")
		fmt.Fprint(w, `{"licenses":[]}`)
	}), 5)

	params := url.Values{}
	params.Set("status", "expiring_in")
	if err := client.Paginate(context.Background(), "/software_licenses", params, 0, func(rec gjson.Result) error {
		return nil
	}); err != nil {
		t.Fatalf("Paginate returned error: %v", err)
	}
	if gotStatus != "expiring_in" {
		t.Errorf("status param = %q, want %q", gotStatus, "expiring_in")
	}
	// The caller's params map must not be mutated by pagination bookkeeping.
	if params.Get("page") != "" {
		t.Errorf("caller params were mutated: page=%q", params.Get("page"))
	}
}
