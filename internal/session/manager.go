// Package session runs study sessions over the three schedulers. It builds a
// scheduler from stored progress and the current catalog, applies ratings,
// and hands complete snapshots to the outbox when a session ends or is quit.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/conorfennell/knoldrill/internal/catalog"
	"github.com/conorfennell/knoldrill/internal/confidence"
	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/mastery"
	"github.com/conorfennell/knoldrill/internal/outbox"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
)

// Mode selects the scheduler of a session.
type Mode string

const (
	ModeMastery    Mode = "mastery"
	ModeConfidence Mode = "confidence"
	ModeDue        Mode = "due"
)

// ParseMode resolves a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeMastery, ModeConfidence, ModeDue:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownMode, s)
}

// Status is the lifecycle stage of a session.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
	StatusQuit     Status = "quit"
)

// Store is the read side the manager needs to start sessions.
type Store interface {
	AllItems(ctx context.Context) ([]domain.Item, error)
	LoadConfidenceProgress(ctx context.Context, id string) (*confidence.Progress, error)
	LoadMasteryProgress(ctx context.Context, id string) (*mastery.Progress, error)
	LoadReviewConfig(ctx context.Context, id string) (reviewdue.Config, bool, error)
	ReviewCards(ctx context.Context, items []domain.Item) ([]reviewdue.Card, error)
}

// Publisher accepts snapshots for background delivery.
type Publisher interface {
	Enqueue(r outbox.Record) error
}

// Config holds the defaults applied to new sessions.
type Config struct {
	ReinsertDistance int
	Intervals        confidence.IntervalConfig
	NewWordCount     *int
	Review           reviewdue.Config
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock. Defaults to time.Now.
func WithClock(c func() time.Time) Option {
	return func(m *Manager) {
		m.now = c
	}
}

// WithRand sets the source used to shuffle new review cards.
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) {
		m.rng = rng
	}
}

// WithGrader sets how review-due sessions build their grader from the deck settings.
func WithGrader(f func(reviewdue.Config) reviewdue.Grader) Option {
	return func(m *Manager) {
		m.grader = f
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// Manager owns the sessions of the process. It is safe for concurrent use.
type Manager struct {
	store  Store
	out    Publisher
	cfg    Config
	now    func() time.Time
	rng    *rand.Rand
	grader func(reviewdue.Config) reviewdue.Grader
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager returns a manager reading from store and publishing to out.
func NewManager(store Store, out Publisher, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		out:      out,
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(m.now().UnixNano()))
	}
	return m
}

// liveCatalog is the item set a running session resolves against. The
// manager swaps in a freshly loaded catalog whenever the session is touched.
type liveCatalog struct {
	cat *catalog.Catalog
}

func (l *liveCatalog) Has(id domain.ItemID) bool {
	return l.cat.Has(id)
}

type session struct {
	id         string
	mode       Mode
	progressID string
	startedAt  time.Time
	status     Status
	items      *liveCatalog
	d          driver
	rec        Recorder
}

// StartRequest describes a session to start. ProgressID names the stored
// progress (the deck for review-due sessions); an empty id starts fresh.
// Containers and Tags select the eligible items of a fresh session.
type StartRequest struct {
	Mode       Mode     `json:"mode"`
	ProgressID string   `json:"progressId,omitempty"`
	Name       string   `json:"name,omitempty"`
	Containers []int64  `json:"containers,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// ItemView is an item as shown to the learner.
type ItemView struct {
	ID       domain.ItemID `json:"id"`
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Context  string        `json:"context,omitempty"`
	Tags     []string      `json:"tags,omitempty"`
}

// View is the externally visible state of a session.
type View struct {
	ID         string    `json:"id"`
	Mode       Mode      `json:"mode"`
	ProgressID string    `json:"progressId"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	Current    *ItemView `json:"current,omitempty"`
	Stats      Stats     `json:"stats"`
	Summary    Summary   `json:"summary"`
}

// Start builds a session. It returns domain.ErrNothingToStudy or
// domain.ErrNothingDue when there is nothing to present.
func (m *Manager) Start(ctx context.Context, req StartRequest) (View, error) {
	items, err := m.store.AllItems(ctx)
	if err != nil {
		return View{}, fmt.Errorf("failed to load items: %w", err)
	}
	cat := catalog.New(items)
	now := m.now()

	s := &session{
		id:         uuid.NewString(),
		mode:       req.Mode,
		progressID: req.ProgressID,
		startedAt:  now,
		status:     StatusActive,
		items:      &liveCatalog{cat: cat},
	}
	filter := catalog.Filter{Containers: req.Containers, Tags: req.Tags}

	switch req.Mode {
	case ModeMastery:
		s.d, err = m.startMastery(ctx, s, cat, filter)
	case ModeConfidence:
		s.d, err = m.startConfidence(ctx, s, cat, filter, req.Name, now)
	case ModeDue:
		s.d, err = m.startDue(ctx, s, cat, filter)
	default:
		return View{}, fmt.Errorf("%w: %q", domain.ErrUnknownMode, req.Mode)
	}
	if err != nil {
		return View{}, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	view := s.view()
	m.mu.Unlock()

	m.logger.Info("Started session", "session", s.id, "mode", s.mode, "progress", s.progressID, "remaining", view.Stats.Remaining)
	return view, nil
}

func (m *Manager) startMastery(ctx context.Context, s *session, cat *catalog.Catalog, filter catalog.Filter) (driver, error) {
	var opts []mastery.Option
	opts = append(opts, mastery.WithReinsertDistance(m.cfg.ReinsertDistance))

	var ids []domain.ItemID
	p, err := m.loadMastery(ctx, s.progressID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		// Resume over the stored list, dropping items that no longer exist.
		// The resume index moves back by the number of dropped items before it.
		resume := min(max(p.ResumeIndex, 0), len(p.ItemIDs))
		dropped := lo.CountBy(p.ItemIDs[:resume], func(id domain.ItemID) bool { return !cat.Has(id) })
		ids = lo.Filter(p.ItemIDs, func(id domain.ItemID, _ int) bool { return cat.Has(id) })
		opts = append(opts,
			mastery.WithResumeIndex(resume-dropped),
			mastery.WithMastered(lo.Filter(p.Mastered, func(id domain.ItemID, _ int) bool { return cat.Has(id) })),
		)
	} else {
		if s.progressID == "" {
			s.progressID = uuid.NewString()
		}
		ids = catalog.IDs(cat.Eligible(filter))
	}

	sched := mastery.New(ids, opts...)
	if _, ok := sched.Current(); !ok {
		return nil, domain.ErrNothingToStudy
	}
	return &masteryDriver{progressID: s.progressID, s: sched}, nil
}

func (m *Manager) loadMastery(ctx context.Context, id string) (*mastery.Progress, error) {
	if id == "" {
		return nil, nil
	}
	p, err := m.store.LoadMasteryProgress(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load mastery progress %s: %w", id, err)
	}
	return p, nil
}

func (m *Manager) startConfidence(ctx context.Context, s *session, cat *catalog.Catalog, filter catalog.Filter, name string, now time.Time) (driver, error) {
	var p confidence.Progress
	stored, err := m.loadConfidence(ctx, s.progressID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		p = *stored
		filter = catalog.Filter{Containers: p.TableIDs, Tags: p.Tags}
	} else {
		if s.progressID == "" {
			s.progressID = uuid.NewString()
		}
		p = confidence.Progress{
			ID:           s.progressID,
			Name:         name,
			TableIDs:     filter.Containers,
			Tags:         filter.Tags,
			CreatedAt:    now,
			CardStates:   make(map[domain.ItemID]domain.Rating),
			NewWordCount: m.cfg.NewWordCount,
		}
	}
	if p.IntervalConfig == nil && m.cfg.Intervals != nil {
		p.IntervalConfig = confidence.NewIntervalConfig(m.cfg.Intervals)
	}

	// Refresh the queue against the catalog, keeping the current item current.
	var currentID domain.ItemID
	if p.CurrentIndex >= 0 && p.CurrentIndex < len(p.Queue) {
		currentID = p.Queue[p.CurrentIndex]
	}
	p.Queue = confidence.BuildQueue(p.Queue, p.CardStates, catalog.IDs(cat.Eligible(filter)), p.NewWordCount)
	if i := p.Queue.IndexOf(currentID); i >= 0 {
		p.CurrentIndex = i
	}

	sched := confidence.New(p, confidence.WithResolver(s.items))
	if sched.Done() {
		return nil, domain.ErrNothingToStudy
	}
	return &confidenceDriver{s: sched}, nil
}

func (m *Manager) loadConfidence(ctx context.Context, id string) (*confidence.Progress, error) {
	if id == "" {
		return nil, nil
	}
	p, err := m.store.LoadConfidenceProgress(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load confidence progress %s: %w", id, err)
	}
	return p, nil
}

func (m *Manager) startDue(ctx context.Context, s *session, cat *catalog.Catalog, filter catalog.Filter) (driver, error) {
	if s.progressID == "" {
		s.progressID = "default"
	}
	cfg, ok, err := m.store.LoadReviewConfig(ctx, s.progressID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review config %s: %w", s.progressID, err)
	}
	if !ok {
		cfg = m.cfg.Review
	}

	eligible := cat.Eligible(filter)
	if len(eligible) == 0 {
		return nil, domain.ErrNothingToStudy
	}
	cards, err := m.store.ReviewCards(ctx, eligible)
	if err != nil {
		return nil, fmt.Errorf("failed to load review cards: %w", err)
	}

	opts := []reviewdue.Option{
		reviewdue.WithClock(m.now),
		reviewdue.WithRand(m.sessionRand()),
	}
	if m.grader != nil {
		opts = append(opts, reviewdue.WithGrader(m.grader(cfg)))
	}
	sess, err := reviewdue.BuildSession(cards, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &dueDriver{deckID: s.progressID, s: sess}, nil
}

// Rate applies a rating to the current item of session id. Items deleted
// since the session started are then healed away. When the session ends its
// snapshot and results are published.
func (m *Manager) Rate(ctx context.Context, id string, r domain.Rating) (View, error) {
	cat := m.loadCatalog(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active(id)
	if err != nil {
		return View{}, err
	}
	item, ok := s.d.current()
	if !ok {
		return View{}, domain.ErrSessionFinished
	}
	correct, err := s.d.rate(r)
	if err != nil {
		return View{}, err
	}
	s.rec.Record(item, r, correct, m.now())
	m.refresh(s, cat)

	if s.d.finished() {
		s.status = StatusFinished
		m.publish(s)
		m.logger.Info("Finished session", "session", s.id, "mode", s.mode, "answered", len(s.rec.results))
	}
	return s.view(), nil
}

// Quit ends session id early and publishes its healed snapshot and results.
func (m *Manager) Quit(ctx context.Context, id string) (View, error) {
	cat := m.loadCatalog(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active(id)
	if err != nil {
		return View{}, err
	}
	m.refresh(s, cat)
	s.status = StatusQuit
	m.publish(s)
	m.logger.Info("Quit session", "session", s.id, "mode", s.mode, "answered", len(s.rec.results))
	return s.view(), nil
}

// Checkpoint publishes the healed snapshot of an active session without
// ending it. A session that healing left without items is finished instead.
func (m *Manager) Checkpoint(ctx context.Context, id string) (View, error) {
	cat := m.loadCatalog(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active(id)
	if err != nil {
		return View{}, err
	}
	m.refresh(s, cat)
	if s.d.finished() {
		s.status = StatusFinished
		m.publish(s)
		return s.view(), nil
	}
	m.publishSnapshot(s)
	return s.view(), nil
}

// Get returns the state of session id.
func (m *Manager) Get(id string) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	return s.view(), nil
}

// Forget drops ended sessions older than maxAge and returns how many were removed.
func (m *Manager) Forget(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	n := 0
	for id, s := range m.sessions {
		if s.status != StatusActive && s.startedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// loadCatalog reads the current items. On failure it logs and returns nil,
// which leaves running sessions on the catalog they already have.
func (m *Manager) loadCatalog(ctx context.Context) *catalog.Catalog {
	items, err := m.store.AllItems(ctx)
	if err != nil {
		m.logger.Warn("Failed to reload items, healing skipped", "error", err)
		return nil
	}
	return catalog.New(items)
}

// refresh points s at cat and drops the ids that no longer resolve. The
// caller holds m.mu.
func (m *Manager) refresh(s *session, cat *catalog.Catalog) {
	if cat == nil {
		return
	}
	s.items.cat = cat
	if n := s.d.heal(s.items); n > 0 {
		m.logger.Info("Healed session", "session", s.id, "mode", s.mode, "dropped", n)
	}
}

// sessionRand derives a source for one session from m.rng, which is only
// touched under m.mu.
func (m *Manager) sessionRand() *rand.Rand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rand.New(rand.NewSource(m.rng.Int63()))
}

func (m *Manager) active(id string) (*session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.status != StatusActive {
		return nil, domain.ErrSessionFinished
	}
	return s, nil
}

// publish hands the session's snapshot and results to the outbox. Failures
// are logged; the in-memory state stays authoritative.
func (m *Manager) publish(s *session) {
	m.publishSnapshot(s)
	if len(s.rec.results) == 0 {
		return
	}
	rec, err := outbox.NewRecord(outbox.KindSessionResults, s.id, s.rec.Results(), m.now())
	if err == nil {
		err = m.out.Enqueue(rec)
	}
	if err != nil {
		m.logger.Error("Failed to publish session results", "session", s.id, "error", err)
	}
}

func (m *Manager) publishSnapshot(s *session) {
	rec, err := s.d.snapshot(m.now())
	if err == nil {
		err = m.out.Enqueue(rec)
	}
	if err != nil {
		m.logger.Error("Failed to publish snapshot", "session", s.id, "mode", s.mode, "error", err)
	}
}

func (s *session) view() View {
	v := View{
		ID:         s.id,
		Mode:       s.mode,
		ProgressID: s.progressID,
		Status:     s.status,
		StartedAt:  s.startedAt,
		Stats:      s.d.stats(),
		Summary:    s.rec.Summary(),
	}
	if s.status != StatusActive {
		return v
	}
	if id, ok := s.d.current(); ok {
		if item, found := s.items.cat.Get(id); found {
			v.Current = &ItemView{
				ID:       item.ID,
				Question: item.Question,
				Answer:   item.Answer,
				Context:  item.Context,
				Tags:     item.Tags,
			}
		}
	}
	return v
}
