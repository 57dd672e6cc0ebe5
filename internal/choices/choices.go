// Package choices resolves configurable status codes loaded once from status_choices.
package choices

import (
	"errors"
	"fmt"
	"sort"

	"buildline/internal/domain"
)

// ErrNoActiveChoice means a domain has no active entry to fall back to.
var ErrNoActiveChoice = errors.New("no active choice")

// Table is an immutable in-memory view of status_choices.
type Table struct {
	byID     map[int64]domain.StatusChoice
	byDomain map[string][]domain.StatusChoice
}

func NewTable(rows []domain.StatusChoice) *Table {
	t := &Table{
		byID:     make(map[int64]domain.StatusChoice, len(rows)),
		byDomain: map[string][]domain.StatusChoice{},
	}
	for _, r := range rows {
		t.byID[r.ID] = r
		t.byDomain[r.Domain] = append(t.byDomain[r.Domain], r)
	}
	for d := range t.byDomain {
		list := t.byDomain[d]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].SortOrder != list[j].SortOrder {
				return list[i].SortOrder < list[j].SortOrder
			}
			return list[i].ID < list[j].ID
		})
	}
	return t
}

func (t *Table) ByID(id int64) (domain.StatusChoice, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Lookup finds a choice by domain and code regardless of its active flag.
func (t *Table) Lookup(dom, code string) (domain.StatusChoice, bool) {
	for _, c := range t.byDomain[dom] {
		if c.Code == code {
			return c, true
		}
	}
	return domain.StatusChoice{}, false
}

// Active returns the active choices of a domain in sort order.
func (t *Table) Active(dom string) []domain.StatusChoice {
	var out []domain.StatusChoice
	for _, c := range t.byDomain[dom] {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// IsActive reports whether code is an active choice in dom.
func (t *Table) IsActive(dom, code string) bool {
	c, ok := t.Lookup(dom, code)
	return ok && c.Active
}

// Resolution is the outcome of Resolve. Fallback is set when the requested
// code was missing or inactive and the first active choice was used instead.
type Resolution struct {
	Choice    domain.StatusChoice
	Requested string
	Fallback  bool
}

// Resolve returns the requested choice when it exists and is active, otherwise
// the first active choice of the domain. It fails only when the domain has no
// active choice at all.
func (t *Table) Resolve(dom, code string) (Resolution, error) {
	if c, ok := t.Lookup(dom, code); ok && c.Active {
		return Resolution{Choice: c, Requested: code}, nil
	}
	active := t.Active(dom)
	if len(active) == 0 {
		return Resolution{Requested: code}, fmt.Errorf("%w in %s", ErrNoActiveChoice, dom)
	}
	return Resolution{Choice: active[0], Requested: code, Fallback: true}, nil
}
