package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/knoldrill/internal/confidence"
	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/mastery"
	"github.com/conorfennell/knoldrill/internal/outbox"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "knoldrill.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addSource(t *testing.T, db *DB, path string) int64 {
	t.Helper()
	id, err := db.InsertSource(context.Background(), SourceLocal, path)
	if err != nil {
		t.Fatalf("InsertSource: %v", err)
	}
	return id
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id := addSource(t, db, "/notes")
	if _, err := db.InsertSource(ctx, SourceGit, "https://example.com/deck.git"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertSource(ctx, SourceLocal, "/notes"); err == nil {
		t.Error("Expected duplicate path to fail, but it succeeded")
	}

	s, err := db.FindSourceByPath(ctx, "/notes")
	if err != nil || s == nil {
		t.Fatalf("FindSourceByPath = %v, %v", s, err)
	}
	if s.ID != id || s.Type != SourceLocal || s.LastScanned.Valid {
		t.Errorf("Expected fresh local source %d, but got %+v", id, s)
	}
	if missing, err := db.FindSourceByPath(ctx, "/nope"); err != nil || missing != nil {
		t.Errorf("Expected nil for missing source, but got %v, %v", missing, err)
	}

	if err := db.UpdateSourceLastScanned(ctx, id); err != nil {
		t.Fatal(err)
	}
	all, err := db.GetAllSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || !all[0].LastScanned.Valid || all[1].Type != SourceGit {
		t.Errorf("GetAllSources = %+v", all)
	}
}

func TestItems(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	src := addSource(t, db, "/notes")

	a := domain.Item{ID: "a", Question: "Q1", Answer: "A1", ContainerID: src, Tags: []string{"go"}}
	b := domain.Item{ID: "b", Question: "Q2", ContainerID: src}
	for _, item := range []domain.Item{a, b} {
		if err := db.UpsertItem(ctx, item); err != nil {
			t.Fatal(err)
		}
	}
	a.Context = "updated"
	if err := db.UpsertItem(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetItemsBySourceID(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[0].Context != "updated" || got[0].Tags[0] != "go" {
		t.Errorf("GetItemsBySourceID = %+v", got)
	}
	if len(got[1].Tags) != 0 {
		t.Errorf("Expected no tags, but got %v", got[1].Tags)
	}

	if err := db.SaveReviewCards(ctx, []reviewdue.Card{reviewdue.NewCard(a)}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteItem(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if item, err := db.FindItem(ctx, "a"); err != nil || item != nil {
		t.Errorf("Expected deleted item to be gone, but got %v, %v", item, err)
	}
	all, err := db.AllItems(ctx)
	if err != nil || len(all) != 1 || all[0].ID != "b" {
		t.Errorf("AllItems = %v, %v", all, err)
	}
}

func TestDeleteSourceRemovesItems(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	gone := addSource(t, db, "/old")
	kept := addSource(t, db, "/notes")

	for _, item := range []domain.Item{
		{ID: "a", Question: "Q1", ContainerID: gone},
		{ID: "b", Question: "Q2", ContainerID: gone},
		{ID: "c", Question: "Q3", ContainerID: kept},
	} {
		if err := db.UpsertItem(ctx, item); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.DeleteSource(ctx, gone); err != nil {
		t.Fatal(err)
	}
	items, err := db.GetItemsBySourceID(ctx, gone)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("Expected the deleted source's items to be gone, but got %+v", items)
	}
	if item, err := db.FindItem(ctx, "a"); err != nil || item != nil {
		t.Errorf("Expected item a to be gone, but got %v, %v", item, err)
	}
	all, err := db.AllItems(ctx)
	if err != nil || len(all) != 1 || all[0].ID != "c" {
		t.Errorf("Expected only c to survive, but got %v, %v", all, err)
	}
	sources, err := db.GetAllSources(ctx)
	if err != nil || len(sources) != 1 || sources[0].ID != kept {
		t.Errorf("Expected only source %d left, but got %+v, %v", kept, sources, err)
	}
}

func TestConfidenceProgressReplaces(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	p := confidence.Progress{
		ID:         "spanish",
		Name:       "Spanish",
		CreatedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Queue:      domain.Queue{"a", "b", "c"},
		CardStates: map[domain.ItemID]domain.Rating{"a": domain.Good, "b": domain.Hard},
	}
	if err := db.SaveConfidenceProgress(ctx, p); err != nil {
		t.Fatal(err)
	}

	p.Queue = domain.Queue{"c"}
	p.CardStates = map[domain.ItemID]domain.Rating{"c": domain.Easy}
	p.CurrentIndex = 0
	if err := db.SaveConfidenceProgress(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadConfidenceProgress(ctx, "spanish")
	if err != nil || got == nil {
		t.Fatalf("LoadConfidenceProgress = %v, %v", got, err)
	}
	if len(got.Queue) != 1 || len(got.CardStates) != 1 || got.CardStates["c"] != domain.Easy {
		t.Errorf("Expected the second record to replace the first, but got %+v", got)
	}

	if missing, err := db.LoadConfidenceProgress(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("Expected nil for missing progress, but got %v, %v", missing, err)
	}
	list, err := db.ListConfidenceProgress(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("ListConfidenceProgress = %v, %v", list, err)
	}
}

func TestReviewCards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	items := []domain.Item{{ID: "a", ContainerID: 1}, {ID: "b", ContainerID: 1}}
	due := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	stored := reviewdue.Card{ItemID: "a", State: reviewdue.Review, Interval: 6, EaseFactor: 2.2, Due: &due}
	if err := db.SaveReviewCards(ctx, []reviewdue.Card{stored}); err != nil {
		t.Fatal(err)
	}

	cards, err := db.ReviewCards(ctx, items)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, but got %d", len(cards))
	}
	if cards[0].State != reviewdue.Review || cards[0].Interval != 6 || !cards[0].Due.Equal(due) {
		t.Errorf("Expected stored card for a, but got %+v", cards[0])
	}
	if cards[1].State != reviewdue.New || cards[1].EaseFactor != reviewdue.DefaultEaseFactor {
		t.Errorf("Expected new card for b, but got %+v", cards[1])
	}

	cfg := reviewdue.DefaultConfig()
	cfg.NewCardsPerDay = 7
	if err := db.SaveReviewConfig(ctx, "deck", cfg); err != nil {
		t.Fatal(err)
	}
	got, ok, err := db.LoadReviewConfig(ctx, "deck")
	if err != nil || !ok || got.NewCardsPerDay != 7 || len(got.LearningSteps) != 2 {
		t.Errorf("LoadReviewConfig = %+v, %v, %v", got, ok, err)
	}
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

	record := func(kind outbox.Kind, key string, v any) outbox.Record {
		t.Helper()
		r, err := outbox.NewRecord(kind, key, v, now)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}

	results := []domain.Result{
		{ItemID: "a", Correct: false, Rating: domain.Again, Timestamp: now},
		{ItemID: "a", Correct: true, Rating: domain.Superb, Timestamp: now.Add(time.Second)},
	}
	records := []outbox.Record{
		record(outbox.KindMasteryProgress, "m", mastery.Progress{ID: "m", ItemIDs: []domain.ItemID{"a"}, ResumeIndex: 1, Mastered: []domain.ItemID{"a"}, MasteredCount: 1}),
		record(outbox.KindConfidenceProgress, "c", confidence.Progress{ID: "c", Queue: domain.Queue{"a"}}),
		record(outbox.KindReviewCards, "deck", []reviewdue.Card{{ItemID: "a", State: reviewdue.Learning, EaseFactor: 2.5}}),
		record(outbox.KindSessionResults, "session-1", results),
		record(outbox.KindSessionResults, "session-1", results[1:]),
	}
	for _, r := range records {
		if err := db.Deliver(ctx, r); err != nil {
			t.Fatalf("Deliver(%s): %v", r.Kind, err)
		}
	}

	m, err := db.LoadMasteryProgress(ctx, "m")
	if err != nil || m == nil || m.MasteredCount != 1 {
		t.Errorf("LoadMasteryProgress = %+v, %v", m, err)
	}
	c, err := db.LoadConfidenceProgress(ctx, "c")
	if err != nil || c == nil || c.Queue[0] != "a" {
		t.Errorf("LoadConfidenceProgress = %+v, %v", c, err)
	}
	cards, err := db.ReviewCards(ctx, []domain.Item{{ID: "a"}})
	if err != nil || cards[0].State != reviewdue.Learning {
		t.Errorf("ReviewCards = %+v, %v", cards, err)
	}
	got, err := db.Results(ctx, "session-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Rating != domain.Superb || !got[0].Correct || !got[0].Timestamp.Equal(now.Add(time.Second)) {
		t.Errorf("Expected results to be replaced, but got %+v", got)
	}

	if err := db.Deliver(ctx, outbox.Record{Kind: "bogus"}); err == nil {
		t.Error("Expected error for unknown kind, but got nil")
	}
}
