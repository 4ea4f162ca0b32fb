// Package catalog indexes the learnable items of the current process and
// answers eligibility questions for study sessions.
package catalog

import (
	"github.com/samber/lo"

	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/knol"
)

// Catalog is an immutable, id-indexed view over a set of items.
// Input order is preserved; duplicate ids keep the first occurrence.
type Catalog struct {
	items []domain.Item
	byID  map[domain.ItemID]int
}

// New builds a catalog from items.
func New(items []domain.Item) *Catalog {
	c := &Catalog{byID: make(map[domain.ItemID]int, len(items))}
	for _, item := range items {
		if _, dup := c.byID[item.ID]; dup {
			continue
		}
		c.byID[item.ID] = len(c.items)
		c.items = append(c.items, item)
	}
	return c
}

// Has reports whether id resolves to an item.
func (c *Catalog) Has(id domain.ItemID) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the item for id.
func (c *Catalog) Get(id domain.ItemID) (domain.Item, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Item{}, false
	}
	return c.items[i], true
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	return len(c.items)
}

// Items returns all items in catalog order.
func (c *Catalog) Items() []domain.Item {
	out := make([]domain.Item, len(c.items))
	copy(out, c.items)
	return out
}

// Filter selects the items a session may study.
type Filter struct {
	// Containers restricts items to these source ids. Empty means every container.
	Containers []int64
	// Tags requires at least one matching tag. Empty means no tag requirement.
	Tags []string
}

// Eligible returns the items matching f, in catalog order.
func (c *Catalog) Eligible(f Filter) []domain.Item {
	required := knol.NormalizeTags(f.Tags)
	return lo.Filter(c.items, func(item domain.Item, _ int) bool {
		if len(f.Containers) > 0 && !lo.Contains(f.Containers, item.ContainerID) {
			return false
		}
		if len(required) == 0 {
			return true
		}
		return lo.Some(required, knol.NormalizeTags(item.Tags))
	})
}

// IDs returns the ids of items, preserving order.
func IDs(items []domain.Item) []domain.ItemID {
	return lo.Map(items, func(item domain.Item, _ int) domain.ItemID {
		return item.ID
	})
}
