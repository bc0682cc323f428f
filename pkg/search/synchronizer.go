package search

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/storefront/pkg/debounce"
	"github.com/vango-dev/storefront/pkg/urlparam"
	"k8s.io/utils/clock"
)

const (
	// DefaultQuietPeriod is how long the input must be idle before it settles.
	DefaultQuietPeriod = 400 * time.Millisecond

	// DefaultPath is the results page navigated to on settle.
	DefaultPath = "/search"

	// QueryParam carries the search text.
	QueryParam = "q"

	// PageParam carries the results page; it is dropped on every new search.
	PageParam = "page"
)

// Settle describes one settle of the debounced value. It is passed to the
// WithOnSettle callback after the navigation (if any) has been issued, which
// makes it the hook for metrics and logging:
//
//	search.WithOnSettle(func(s search.Settle) {
//	    if s.Navigated {
//	        navigations.Inc()
//	    }
//	})
type Settle struct {
	// Value is the settled query text.
	Value string

	// Target is the navigation target, empty when Navigated is false.
	Target string

	// Navigated is false only when the guard suppressed navigation: the value
	// is empty, the page started without a query and the URL carries none.
	Navigated bool

	// Mount is true for the settle performed by Start.
	Mount bool
}

// Option configures a Synchronizer.
type Option func(*options)

type options struct {
	quiet    time.Duration
	path     string
	clock    clock.WithDelayedExecution
	dispatch debounce.Dispatcher
	logger   *slog.Logger
	onSettle func(Settle)
}

// WithQuietPeriod overrides the debounce quiet period.
func WithQuietPeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.quiet = d
		}
	}
}

// WithPath overrides the results path.
func WithPath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.path = path
		}
	}
}

// WithClock sets the clock driving the debounce timer.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithDispatcher routes debounced settles through dispatch, typically a
// session's event loop.
func WithDispatcher(dispatch debounce.Dispatcher) Option {
	return func(o *options) {
		o.dispatch = dispatch
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOnSettle registers a callback invoked after every settle.
func WithOnSettle(fn func(Settle)) Option {
	return func(o *options) {
		o.onSettle = fn
	}
}

// Synchronizer reconciles search input with the URL.
//
// It holds three pieces of state: the visible text, updated on every Input;
// the settled value, updated once the input has been quiet for the quiet
// period; and its view of the current URL parameter set, replaced by each
// navigation it issues and by SetLocation. Navigation targets keep every
// other parameter in its original position, set or remove `q`, and always
// remove `page`.
//
// Methods are safe to call from any goroutine, but settles are delivered
// through the dispatcher, so a caller that owns an event loop sees them in
// order with its other work. Close stops pending and future settles.
type Synchronizer struct {
	path     string
	initialQ string
	nav      urlparam.Navigator
	debounce *debounce.Debouncer
	logger   *slog.Logger
	onSettle func(Settle)

	mu      sync.Mutex
	text    string
	settled string
	params  urlparam.Params
	closed  bool
}

// New creates a Synchronizer for a page whose current query string is
// initial. Visible text and settled value both start at initial's `q`.
func New(initial urlparam.Params, nav urlparam.Navigator, opts ...Option) *Synchronizer {
	o := options{
		quiet: DefaultQuietPeriod,
		path:  DefaultPath,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if nav == nil {
		nav = urlparam.NavigatorFunc(nil)
	}

	q := initial.Get(QueryParam)
	dopts := []debounce.Option{debounce.WithClock(o.clock)}
	if o.dispatch != nil {
		dopts = append(dopts, debounce.WithDispatcher(o.dispatch))
	}

	return &Synchronizer{
		path:     o.path,
		initialQ: q,
		nav:      nav,
		debounce: debounce.New(o.quiet, dopts...),
		logger:   o.logger.With("component", "search"),
		onSettle: o.onSettle,
		text:     q,
		settled:  q,
		params:   initial.Clone(),
	}
}

// Start performs the settle that happens when the search box first appears,
// using the initial value. It navigates unless the page had no query.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	value := s.settled
	s.mu.Unlock()
	s.settle(value, true)
}

// Input records a text change. The visible text updates immediately and the
// settle is (re)scheduled for one quiet period from now.
func (s *Synchronizer) Input(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.text = text
	s.mu.Unlock()

	s.debounce.Trigger(func() {
		s.settle(text, false)
	})
}

// SetLocation replaces the synchronizer's view of the current URL parameter
// set, e.g. after the user navigated with the back button. Text and settled
// value are left alone.
func (s *Synchronizer) SetLocation(params urlparam.Params) {
	s.mu.Lock()
	s.params = params.Clone()
	s.mu.Unlock()
}

func (s *Synchronizer) settle(value string, mount bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.settled = value
	ev := Settle{Value: value, Mount: mount}
	if value == "" && s.initialQ == "" && !s.params.Has(QueryParam) {
		s.mu.Unlock()
		s.logger.Debug("settle skipped navigation", "mount", mount)
		s.notify(ev)
		return
	}
	next := s.params.Clone()
	ev.Target = target(&next, value, s.path)
	ev.Navigated = true
	s.params = next
	s.mu.Unlock()

	s.logger.Debug("settle", "value", value, "target", ev.Target, "mount", mount)
	s.nav.Navigate(ev.Target)
	s.notify(ev)
}

func (s *Synchronizer) notify(ev Settle) {
	if s.onSettle != nil {
		s.onSettle(ev)
	}
}

// Text returns the visible input text.
func (s *Synchronizer) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Settled returns the most recently settled value.
func (s *Synchronizer) Settled() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}

// InitialQuery returns the `q` value captured at construction.
func (s *Synchronizer) InitialQuery() string {
	return s.initialQ
}

// Params returns a copy of the URL parameter set as of the last navigation.
func (s *Synchronizer) Params() urlparam.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Clone()
}

// Path returns the results page path navigations target.
func (s *Synchronizer) Path() string {
	return s.path
}

// Coalesced returns how many scheduled settles were superseded by later input.
func (s *Synchronizer) Coalesced() uint64 {
	_, cancelled := s.debounce.Stats()
	return cancelled
}

// Pending reports whether a settle is scheduled.
func (s *Synchronizer) Pending() bool {
	return s.debounce.Pending()
}

// Close cancels any pending settle. Later Input calls are ignored.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.debounce.Cancel()
}

// Target builds the navigation target for a settled value: params is cloned,
// `q` is set to settled (or removed when empty) and `page` is removed.
func Target(params urlparam.Params, settled, path string) string {
	next := params.Clone()
	return target(&next, settled, path)
}

func target(p *urlparam.Params, settled, path string) string {
	if settled != "" {
		p.Set(QueryParam, settled)
	} else {
		p.Del(QueryParam)
	}
	p.Del(PageParam)
	return p.WithPath(path)
}
