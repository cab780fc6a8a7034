// Package session ties one sentence, one lookup cache and one selection
// state together for a single interactive user.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/featurelens/internal/domain"
	"github.com/heartmarshall/featurelens/internal/service/featurecache"
	"github.com/heartmarshall/featurelens/internal/tokenizer"
)

// Session is safe for concurrent use. Lookups run outside the lock; a
// lookup whose selection was replaced before it finished is discarded.
type Session struct {
	id        uuid.UUID
	createdAt time.Time

	fetch     featurecache.FetchFunc
	cache     *featurecache.Cache
	tokenizer *tokenizer.Tokenizer
	now       func() time.Time
	log       *slog.Logger

	mu       sync.Mutex
	sentence string
	tokens   []domain.Token
	state    domain.SelectionState
	// results holds the explanations of the selected token once loaded.
	results  []domain.FeatureExplanation
	// selected is the position of the selected explanation in results, -1
	// when none. Kept apart from state: results may hold identical records.
	selected int
	loading  bool
	lastErr  error
	gen      uint64
	lastUsed time.Time
}

// Option configures a Session.
type Option func(*options)

type options struct {
	id        uuid.UUID
	tokenizer *tokenizer.Tokenizer
	cacheOpts []featurecache.Option
	now       func() time.Time
	log       *slog.Logger
}

// WithID sets the session id instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(c *options) { c.id = id }
}

// WithTokenizer sets the tokenizer used by SetSentence.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(c *options) { c.tokenizer = t }
}

// WithCacheOptions passes options to the session's lookup cache.
func WithCacheOptions(opts ...featurecache.Option) Option {
	return func(c *options) { c.cacheOpts = append(c.cacheOpts, opts...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *options) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) { c.log = logger }
}

// New creates an idle session with an empty sentence. fetch is called on
// cache misses.
func New(fetch featurecache.FetchFunc, opts ...Option) *Session {
	cfg := options{
		tokenizer: tokenizer.New(),
		now:       time.Now,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == uuid.Nil {
		cfg.id = uuid.New()
	}

	log := cfg.log.With("service", "session", slog.String("session_id", cfg.id.String()))
	cacheOpts := append([]featurecache.Option{featurecache.WithLogger(cfg.log)}, cfg.cacheOpts...)
	now := cfg.now()

	return &Session{
		id:        cfg.id,
		createdAt: now,
		fetch:     fetch,
		cache:     featurecache.New(cacheOpts...),
		tokenizer: cfg.tokenizer,
		now:       cfg.now,
		log:       log,
		tokens:    []domain.Token{},
		selected:  -1,
		lastUsed:  now,
	}
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// LastUsed returns the time of the last state-changing call.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SetSentence tokenizes text, clears the cache and resets the selection to
// Idle. Any lookup still in flight is superseded.
func (s *Session) SetSentence(text string) []domain.Token {
	tokens := s.tokenizer.Tokenize(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sentence = text
	s.tokens = tokens
	s.state = domain.SelectionState{}
	s.results = nil
	s.selected = -1
	s.loading = false
	s.lastErr = nil
	s.gen++
	s.lastUsed = s.now()
	s.cache.Clear()

	s.log.Debug("sentence set", slog.Int("tokens", len(tokens)))
	return slices.Clone(tokens)
}

// SelectToken selects token and returns its explanations, fetching them on
// a cache miss. The token must be part of the current sentence. If another
// selection is made before the fetch completes, the result is discarded and
// domain.ErrSuperseded is returned. Lookup failures are returned unchanged
// and leave the token selected with no results.
func (s *Session) SelectToken(ctx context.Context, token string) ([]domain.FeatureExplanation, error) {
	s.mu.Lock()
	if !domain.ContainsText(s.tokens, token) {
		s.mu.Unlock()
		return nil, &domain.InvalidSelectionError{Token: token, Reason: "token is not part of the current sentence"}
	}
	s.state = s.state.SelectToken(token)
	s.results = nil
	s.selected = -1
	s.loading = true
	s.lastErr = nil
	s.gen++
	gen := s.gen
	s.lastUsed = s.now()
	s.mu.Unlock()

	exps, err := s.cache.GetOrFetch(ctx, token, s.fetch)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		s.log.DebugContext(ctx, "discarding superseded lookup", slog.String("token", token))
		return nil, fmt.Errorf("token %q: %w", token, domain.ErrSuperseded)
	}

	s.loading = false
	if err != nil {
		s.lastErr = err
		return nil, err
	}

	s.results = exps
	return slices.Clone(exps), nil
}

// SelectFeature selects the explanation at index in the selected token's
// results.
func (s *Session) SelectFeature(index int) (domain.FeatureExplanation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireResults(); err != nil {
		return domain.FeatureExplanation{}, err
	}
	if index < 0 || index >= len(s.results) {
		token, _ := s.state.Token()
		return domain.FeatureExplanation{}, &domain.InvalidSelectionError{
			Token:  token,
			Reason: fmt.Sprintf("index %d out of range [0, %d)", index, len(s.results)),
		}
	}
	return s.selectLocked(index)
}

// SelectFeatureByDescription selects the first explanation whose description
// matches desc, ignoring case and extra whitespace, and returns its index.
func (s *Session) SelectFeatureByDescription(desc string) (int, domain.FeatureExplanation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireResults(); err != nil {
		return -1, domain.FeatureExplanation{}, err
	}
	want := domain.NormalizeText(desc)
	for i, e := range s.results {
		if domain.NormalizeText(e.Description) == want {
			f, err := s.selectLocked(i)
			if err != nil {
				return -1, f, err
			}
			return i, f, nil
		}
	}
	token, _ := s.state.Token()
	return -1, domain.FeatureExplanation{}, &domain.InvalidSelectionError{
		Token:  token,
		Reason: fmt.Sprintf("no explanation with description %q", desc),
	}
}

// SelectExplanation selects f, which must be a member of the selected
// token's results. Among identical records the first one is selected.
func (s *Session) SelectExplanation(f domain.FeatureExplanation) (domain.FeatureExplanation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireResults(); err != nil {
		return domain.FeatureExplanation{}, err
	}
	i := domain.IndexOf(s.results, f)
	if i < 0 {
		// SelectionState reports the membership failure.
		_, err := s.state.SelectFeature(f, s.results)
		return domain.FeatureExplanation{}, err
	}
	return s.selectLocked(i)
}

func (s *Session) requireResults() error {
	token, ok := s.state.Token()
	if !ok {
		return &domain.InvalidSelectionError{Reason: "no token selected"}
	}
	if s.results == nil {
		return &domain.InvalidSelectionError{Token: token, Reason: "explanations are not loaded"}
	}
	return nil
}

func (s *Session) selectLocked(index int) (domain.FeatureExplanation, error) {
	f := s.results[index]
	next, err := s.state.SelectFeature(f, s.results)
	if err != nil {
		return domain.FeatureExplanation{}, err
	}
	s.state = next
	s.selected = index
	s.lastUsed = s.now()
	return f, nil
}

// Snapshot is a consistent copy of a session's visible state.
type Snapshot struct {
	ID              uuid.UUID
	Sentence        string
	Tokens          []domain.Token
	Phase           domain.SelectionPhase
	SelectedToken   *string
	Explanations    []domain.FeatureExplanation
	SelectedFeature *domain.FeatureExplanation
	SelectedIndex   int
	Loading         bool
	LastError       error
	CachedTokens    int
	CreatedAt       time.Time
	LastUsed        time.Time
}

// Snapshot returns the current state. SelectedIndex is -1 when no
// explanation is selected.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.id,
		Sentence:      s.sentence,
		Tokens:        slices.Clone(s.tokens),
		Phase:         s.state.Phase(),
		Explanations:  slices.Clone(s.results),
		SelectedIndex: -1,
		Loading:       s.loading,
		LastError:     s.lastErr,
		CachedTokens:  s.cache.Len(),
		CreatedAt:     s.createdAt,
		LastUsed:      s.lastUsed,
	}
	if token, ok := s.state.Token(); ok {
		snap.SelectedToken = &token
	}
	if f, ok := s.state.Feature(); ok {
		snap.SelectedFeature = &f
		snap.SelectedIndex = s.selected
	}
	return snap
}

// State returns the current selection state.
func (s *Session) State() domain.SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
