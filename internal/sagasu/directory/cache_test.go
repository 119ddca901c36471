package directory_test

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bdobrica/Sagasu/internal/sagasu/directory"
)

// stubFetcher serves a canned member list and counts fetches per params
// variant.
type stubFetcher struct {
	mu      sync.Mutex
	fetches int
	active  []string // records returned when status=active is requested
	all     []string // records returned otherwise
	delay   time.Duration
}

func (s *stubFetcher) Paginate(_ context.Context, path string, params url.Values, _ int, fn func(rec gjson.Result) error) error {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	records := s.all
	if params.Get("status") == "active" {
		records = s.active
	}
	for _, r := range records {
		if err := fn(gjson.Parse(r)); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubFetcher) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func memberJSON(id int, first, last string) string {
	return fmt.Sprintf(`{"id":%d,"first_name":%q,"last_name":%q,"email":"%s.%s@example.com"}`,
		id, first, last, first, last)
}

func TestCacheMemoizesWithinTTL(t *testing.T) {
	fetcher := &stubFetcher{active: []string{memberJSON(1, "george", "li")}}
	cache := directory.NewCache(fetcher, time.Hour)

	for i := 0; i < 3; i++ {
		members, err := cache.Members(context.Background(), 0, true)
		if err != nil {
			t.Fatalf("Members: %v", err)
		}
		if len(members) != 1 {
			t.Fatalf("got %d members, want 1", len(members))
		}
	}
	if got := fetcher.fetchCount(); got != 1 {
		t.Errorf("fetched %d times, want 1 (memoized)", got)
	}
}

func TestCacheKeysVariantsSeparately(t *testing.T) {
	fetcher := &stubFetcher{
		active: []string{memberJSON(1, "george", "li")},
		all:    []string{memberJSON(1, "george", "li"), memberJSON(2, "old", "timer")},
	}
	cache := directory.NewCache(fetcher, time.Hour)

	active, _ := cache.Members(context.Background(), 0, true)
	all, _ := cache.Members(context.Background(), 0, false)
	if len(active) != 1 || len(all) != 2 {
		t.Errorf("active=%d all=%d, want 1 and 2", len(active), len(all))
	}
	if got := fetcher.fetchCount(); got != 2 {
		t.Errorf("fetched %d times, want 2 (one per variant)", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	fetcher := &stubFetcher{active: []string{memberJSON(1, "george", "li")}}
	cache := directory.NewCache(fetcher, time.Nanosecond)

	cache.Members(context.Background(), 0, true)
	time.Sleep(time.Millisecond)
	cache.Members(context.Background(), 0, true)

	if got := fetcher.fetchCount(); got != 2 {
		t.Errorf("fetched %d times, want 2 after TTL expiry", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	fetcher := &stubFetcher{active: []string{memberJSON(1, "george", "li")}}
	cache := directory.NewCache(fetcher, time.Hour)

	cache.Members(context.Background(), 0, true)
	cache.Invalidate()
	cache.Members(context.Background(), 0, true)

	if got := fetcher.fetchCount(); got != 2 {
		t.Errorf("fetched %d times, want 2 after Invalidate", got)
	}
}

func TestCacheConcurrentPopulationFetchesOnce(t *testing.T) {
	fetcher := &stubFetcher{
		active: []string{memberJSON(1, "george", "li")},
		delay:  20 * time.Millisecond,
	}
	cache := directory.NewCache(fetcher, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Members(context.Background(), 0, true); err != nil {
				t.Errorf("Members: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fetcher.fetchCount(); got != 1 {
		t.Errorf("fetched %d times under concurrency, want 1", got)
	}
}

func TestResolverFallsBackToUnfilteredFetch(t *testing.T) {
	// A directory that ignores the status filter returns nothing, not an
	// error; the resolver must tolerate that and refetch without the filter.
	fetcher := &stubFetcher{
		active: nil,
		all:    []string{memberJSON(1, "george", "li")},
	}
	cache := directory.NewCache(fetcher, time.Hour)
	resolver := directory.NewResolver(cache, 0)

	res, err := resolver.ResolveByName(context.Background(), "George Li")
	if err != nil {
		t.Fatalf("ResolveByName: %v", err)
	}
	if res.Unique == nil || res.Unique.ID != 1 {
		t.Fatalf("expected unique match via unfiltered fallback, got %+v", res)
	}
	if got := fetcher.fetchCount(); got != 2 {
		t.Errorf("fetched %d times, want 2 (filtered then unfiltered)", got)
	}
}
