package directory

import (
	"context"
	"sort"
	"strings"

	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

// MaxCandidates caps how many ranked candidates a resolution may surface for
// disambiguation.
const MaxCandidates = 15

// Scoring weights.  Full-name equality dominates every other signal so a
// single exact match always auto-resolves.
const (
	scoreExactFullName = 100
	scoreNamePrefix    = 10
	scoreInDisplayName = 15
	scoreInEmail       = 2
)

// Candidate is the PII-minimal projection of a member offered for
// disambiguation: id, name, and email only.
type Candidate struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
}

// Resolution is the outcome of a name lookup: either a unique member, or a
// ranked candidate list the caller must put in front of the user.  The
// resolver never guesses among multiple plausible people.
type Resolution struct {
	Unique     *sonar.Member
	Candidates []Candidate
}

// Resolver fuzzy-matches person names against the member directory.
type Resolver struct {
	cache    *Cache
	maxPages int
}

// NewResolver builds a Resolver on top of the given directory cache.
// maxPages bounds the directory fetch; 0 means unbounded.
func NewResolver(cache *Cache, maxPages int) *Resolver {
	return &Resolver{cache: cache, maxPages: maxPages}
}

// ResolveByName scores every directory member against the query name.
//
// The active-members fetch is tried first; directories that do not support
// the status filter silently return nothing rather than failing, so an empty
// filtered result falls back to an unfiltered fetch.
func (r *Resolver) ResolveByName(ctx context.Context, name string) (*Resolution, error) {
	members, err := r.cache.Members(ctx, r.maxPages, true)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		members, err = r.cache.Members(ctx, r.maxPages, false)
		if err != nil {
			return nil, err
		}
	}

	return resolve(name, members), nil
}

// scored pairs a member with its score and directory position (the
// deterministic tie-break).
type scored struct {
	member sonar.Member
	score  int
	exact  bool
	pos    int
}

// resolve is the pure scoring core, separated for testability: given a fixed
// directory snapshot it is idempotent.
func resolve(name string, members []sonar.Member) *Resolution {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	if len(tokens) == 0 {
		return &Resolution{}
	}
	joined := strings.Join(tokens, " ")

	var kept []scored
	for i, m := range members {
		s := scoreMember(tokens, joined, m)
		if s.score > 0 {
			s.member = m
			s.pos = i
			kept = append(kept, s)
		}
	}

	// Stable descending by score; directory order breaks ties.
	sort.SliceStable(kept, func(a, b int) bool {
		return kept[a].score > kept[b].score
	})

	exactCount := 0
	exactIdx := -1
	for i, s := range kept {
		if s.exact {
			exactCount++
			exactIdx = i
		}
	}

	// Unique when exactly one full-name exact match exists, or when only one
	// member matched at all.
	if exactCount == 1 {
		m := kept[exactIdx].member
		return &Resolution{Unique: &m}
	}
	if len(kept) == 1 {
		m := kept[0].member
		return &Resolution{Unique: &m}
	}

	limit := len(kept)
	if limit > MaxCandidates {
		limit = MaxCandidates
	}
	candidates := make([]Candidate, 0, limit)
	for _, s := range kept[:limit] {
		candidates = append(candidates, Candidate{
			ID:        s.member.ID,
			FirstName: s.member.FirstName,
			LastName:  s.member.LastName,
			Email:     s.member.Email,
		})
	}
	return &Resolution{Candidates: candidates}
}

func scoreMember(tokens []string, joined string, m sonar.Member) scored {
	first := strings.ToLower(m.FirstName)
	last := strings.ToLower(m.LastName)
	display := strings.ToLower(m.DisplayName())
	email := strings.ToLower(m.Email)

	var s scored

	if len(tokens) == 2 && tokens[0] == first && tokens[1] == last {
		s.score += scoreExactFullName
		s.exact = true
	} else if joined == strings.TrimSpace(first+" "+last) {
		s.score += scoreExactFullName
		s.exact = true
	}

	for _, tok := range tokens {
		if first != "" && strings.HasPrefix(first, tok) {
			s.score += scoreNamePrefix
		} else if last != "" && strings.HasPrefix(last, tok) {
			s.score += scoreNamePrefix
		}
		if display != "" && strings.Contains(display, tok) {
			s.score += scoreInDisplayName
		}
		if email != "" && strings.Contains(email, tok) {
			s.score += scoreInEmail
		}
	}

	return s
}
