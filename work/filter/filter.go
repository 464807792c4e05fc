package filter

import (
	"strings"
	"sync"

	"streamhub/work/logger"
	"streamhub/work/types"

	"github.com/grafana/regexp"
)

// Denylist is a compiled, case-insensitive set of category substrings.
// A nil *Denylist matches nothing.
type Denylist struct {
	re    *regexp.Regexp
	terms []string
}

// Compile builds a Denylist from raw terms. Terms are matched literally; blank terms
// are ignored. Returns nil when no usable terms remain.
func Compile(terms []string) *Denylist {
	quoted := make([]string, 0, len(terms))
	kept := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
		kept = append(kept, t)
	}
	if len(quoted) == 0 {
		return nil
	}

	return &Denylist{
		re:    regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`),
		terms: kept,
	}
}

// Matches reports whether category contains any denylisted term.
func (d *Denylist) Matches(category string) bool {
	if d == nil || category == "" {
		return false
	}
	return d.re.MatchString(category)
}

// Terms returns the terms the list was compiled from.
func (d *Denylist) Terms() []string {
	if d == nil {
		return nil
	}
	return d.terms
}

// Manager caches compiled denylists keyed by their term set, so that a settings change
// recompiles once and repeated searches reuse the compiled form.
type Manager struct {
	lists map[string]*Denylist
	mu    sync.RWMutex
}

// NewManager creates a new denylist manager
func NewManager() *Manager {
	return &Manager{lists: make(map[string]*Denylist)}
}

// Get returns the compiled denylist for terms.
func (m *Manager) Get(terms []string) *Denylist {
	key := strings.Join(terms, "\x00")

	m.mu.RLock()
	d, ok := m.lists[key]
	m.mu.RUnlock()
	if ok {
		return d
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.lists[key]; ok {
		return d
	}
	d = Compile(terms)
	m.lists[key] = d
	logger.Debug("{filter - Get} compiled denylist with %d terms", len(d.Terms()))
	return d
}

// Clear drops every compiled list.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists = make(map[string]*Denylist)
}

// Filter returns the items whose category does not match the denylist. The input
// slice is not modified.
func Filter(items []types.SearchResultItem, denylist *Denylist) []types.SearchResultItem {
	if denylist == nil {
		return items
	}

	out := make([]types.SearchResultItem, 0, len(items))
	for _, item := range items {
		if denylist.Matches(item.Category) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Cap truncates items to at most n entries. A negative n is treated as zero.
func Cap[T any](items []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(items) <= n {
		return items
	}
	return items[:n]
}
