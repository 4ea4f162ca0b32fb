package knol

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/conorfennell/knoldrill/internal/domain"
)

func normalizePart(part string) string {
	p := strings.ToLower(part)
	p = strings.TrimSpace(p)
	return strings.ReplaceAll(p, "\r\n", "\n")
}

// Normalize concatenates the item's content after cleaning each part.
// Tags and container are not part of an item's identity.
func Normalize(item domain.Item) string {
	// Joined with a newline so "question" and "answer" never run together.
	return strings.Join([]string{
		normalizePart(item.Question),
		normalizePart(item.Answer),
		normalizePart(item.Context),
	}, "\n")
}

// ID returns the content-derived identifier of an item: the SHA-256 of its
// normalized content as a hex string.
func ID(item domain.Item) domain.ItemID {
	sum := sha256.Sum256([]byte(Normalize(item)))
	return domain.ItemID(fmt.Sprintf("%x", sum))
}

// Assign sets the ID of every item in place and returns the slice.
func Assign(items []domain.Item) []domain.Item {
	for i := range items {
		items[i].ID = ID(items[i])
	}
	return items
}

// NormalizeTag lowercases and trims a single tag.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags returns the sorted set of non-empty normalized tags.
func NormalizeTags(tags []string) []string {
	out := lo.Uniq(lo.FilterMap(tags, func(tag string, _ int) (string, bool) {
		t := NormalizeTag(tag)
		return t, t != ""
	}))
	sort.Strings(out)
	return out
}
