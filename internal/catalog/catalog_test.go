package catalog

import (
	"reflect"
	"testing"

	"github.com/conorfennell/knoldrill/internal/domain"
)

func testItems() []domain.Item {
	return []domain.Item{
		{ID: "a", ContainerID: 1, Tags: []string{"Verbs"}},
		{ID: "b", ContainerID: 1},
		{ID: "c", ContainerID: 2, Tags: []string{"nouns", "food"}},
		{ID: "a", ContainerID: 3},
	}
}

func TestNewDeduplicates(t *testing.T) {
	c := New(testItems())
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	item, ok := c.Get("a")
	if !ok || item.ContainerID != 1 {
		t.Errorf("Get(a) = %+v, %v; want first occurrence", item, ok)
	}
	if c.Has("zzz") {
		t.Error("Has(zzz) = true, want false")
	}
}

func TestEligible(t *testing.T) {
	c := New(testItems())
	tests := []struct {
		name   string
		filter Filter
		want   []domain.ItemID
	}{
		{"no filter", Filter{}, []domain.ItemID{"a", "b", "c"}},
		{"container only", Filter{Containers: []int64{1}}, []domain.ItemID{"a", "b"}},
		{"tag match is case-insensitive", Filter{Tags: []string{"verbs"}}, []domain.ItemID{"a"}},
		{"any tag matches", Filter{Tags: []string{"food", "verbs"}}, []domain.ItemID{"a", "c"}},
		{"tag and container", Filter{Containers: []int64{2}, Tags: []string{"verbs"}}, nil},
		{"unknown container", Filter{Containers: []int64{9}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IDs(c.Eligible(tt.filter))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Eligible(%+v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}
