package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/storefront/pkg/urlparam"
	clocktesting "k8s.io/utils/clock/testing"
)

type harness struct {
	clock   *clocktesting.FakeClock
	nav     *urlparam.Recorder
	settles []Settle
	sync    *Synchronizer
}

func newHarness(t *testing.T, rawQuery string, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock: clocktesting.NewFakeClock(time.Unix(0, 0)),
		nav:   &urlparam.Recorder{},
	}
	opts = append([]Option{
		WithClock(h.clock),
		WithOnSettle(func(s Settle) { h.settles = append(h.settles, s) }),
	}, opts...)
	h.sync = New(urlparam.Parse(rawQuery), h.nav, opts...)
	t.Cleanup(h.sync.Close)
	return h
}

func (h *harness) wait(d time.Duration) {
	h.clock.Step(d)
}

func TestNew_InitialValues(t *testing.T) {
	t.Run("FromQuery", func(t *testing.T) {
		h := newHarness(t, "q=shoes&page=3")
		assert.Equal(t, "shoes", h.sync.Text())
		assert.Equal(t, "shoes", h.sync.Settled())
		assert.Equal(t, "shoes", h.sync.InitialQuery())
	})

	t.Run("Absent", func(t *testing.T) {
		h := newHarness(t, "sort=price")
		assert.Equal(t, "", h.sync.Text())
		assert.Equal(t, "", h.sync.Settled())
	})
}

func TestStart_NoQueryDoesNotNavigate(t *testing.T) {
	h := newHarness(t, "")
	h.sync.Start()
	h.wait(time.Second)

	assert.Zero(t, h.nav.Len())
	require.Len(t, h.settles, 1)
	assert.False(t, h.settles[0].Navigated)
	assert.True(t, h.settles[0].Mount)
}

func TestStart_WithQueryNavigates(t *testing.T) {
	h := newHarness(t, "q=foo&page=2")
	h.sync.Start()

	assert.Equal(t, []string{"/search?q=foo"}, h.nav.Targets())
	assert.False(t, h.sync.Params().Has(PageParam))
}

func TestInput_UpdatesTextImmediately(t *testing.T) {
	h := newHarness(t, "")
	h.sync.Input("sh")

	assert.Equal(t, "sh", h.sync.Text())
	assert.Equal(t, "", h.sync.Settled())
	assert.True(t, h.sync.Pending())
	assert.Zero(t, h.nav.Len())
}

func TestInput_SettlesAfterQuietPeriod(t *testing.T) {
	h := newHarness(t, "")
	h.sync.Start()
	h.sync.Input("shoes")

	h.wait(399 * time.Millisecond)
	assert.Zero(t, h.nav.Len())

	h.wait(time.Millisecond)
	assert.Equal(t, "shoes", h.sync.Settled())
	assert.Equal(t, []string{"/search?q=shoes"}, h.nav.Targets())

	h.wait(5 * time.Second)
	assert.Equal(t, 1, h.nav.Len(), "settle must happen once per quiet period")
}

func TestInput_BurstSettlesOnlyFinalValue(t *testing.T) {
	h := newHarness(t, "")
	for _, v := range []string{"r", "re", "red", "red ", "red s", "red sh"} {
		h.sync.Input(v)
		h.wait(50 * time.Millisecond)
	}
	h.wait(400 * time.Millisecond)

	require.Len(t, h.settles, 1)
	assert.Equal(t, "red sh", h.settles[0].Value)
	assert.Equal(t, []string{"/search?q=red%20sh"}, h.nav.Targets())
	assert.Equal(t, uint64(5), h.sync.Coalesced())
}

func TestInput_ClearRemovesQueryAndPage(t *testing.T) {
	h := newHarness(t, "q=shoes&page=3")
	h.sync.Input("")
	h.wait(DefaultQuietPeriod)

	assert.Equal(t, []string{"/search"}, h.nav.Targets())
	assert.Equal(t, "", h.sync.Settled())
}

func TestInput_ClearAfterTypingOnEmptyPage(t *testing.T) {
	h := newHarness(t, "")
	h.sync.Input("hat")
	h.wait(DefaultQuietPeriod)
	h.sync.Input("")
	h.wait(DefaultQuietPeriod)

	assert.Equal(t, []string{"/search?q=hat", "/search"}, h.nav.Targets())
	assert.Equal(t, "", h.sync.Settled())
	assert.False(t, h.sync.Params().Has(QueryParam))
	require.Len(t, h.settles, 2)
	assert.True(t, h.settles[1].Navigated)
}

func TestInput_ClearOnEmptyPageWithoutQuery(t *testing.T) {
	h := newHarness(t, "sort=price")
	h.sync.Input("x")
	h.sync.Input("")
	h.wait(DefaultQuietPeriod)

	assert.Zero(t, h.nav.Len(), "nothing to clear")
	require.Len(t, h.settles, 1)
	assert.False(t, h.settles[0].Navigated)
}

func TestInput_ClearAfterLocationAddedQuery(t *testing.T) {
	h := newHarness(t, "")
	h.sync.SetLocation(urlparam.Parse("q=boots"))
	h.sync.Input("")
	h.wait(DefaultQuietPeriod)

	assert.Equal(t, []string{"/search"}, h.nav.Targets())
}

func TestInput_RefineWithinQuietPeriod(t *testing.T) {
	h := newHarness(t, "q=red")
	h.sync.Input("red ")
	h.wait(200 * time.Millisecond)
	h.sync.Input("red shoes")
	h.wait(DefaultQuietPeriod)

	assert.Equal(t, []string{"/search?q=red%20shoes"}, h.nav.Targets())
}

func TestInput_SameValueSettlesNavigateEachTime(t *testing.T) {
	h := newHarness(t, "")
	h.sync.Input("a")
	h.wait(DefaultQuietPeriod)
	h.sync.Input("a")
	h.wait(DefaultQuietPeriod)

	assert.Equal(t, []string{"/search?q=a", "/search?q=a"}, h.nav.Targets())
}

func TestInput_PreservesOtherParamsInOrder(t *testing.T) {
	h := newHarness(t, "sort=price&q=red&page=4&color=blue")
	h.sync.Input("blue")
	h.wait(DefaultQuietPeriod)

	assert.Equal(t, "/search?sort=price&q=blue&color=blue", h.nav.Last())
	assert.Equal(t, "sort=price&q=blue&color=blue", h.sync.Params().Encode())
}

func TestInput_TreatsMalformedParamsAsOpaque(t *testing.T) {
	h := newHarness(t, "ref=100%&q=x")
	h.sync.Input("y")
	h.wait(DefaultQuietPeriod)

	assert.Equal(t, "/search?ref=100%25&q=y", h.nav.Last())
}

func TestSetLocation(t *testing.T) {
	h := newHarness(t, "q=a")
	h.sync.SetLocation(urlparam.Parse("q=b&sort=new&page=2"))
	h.sync.Input("c")
	h.wait(DefaultQuietPeriod)

	assert.Equal(t, "/search?q=c&sort=new", h.nav.Last())
}

func TestOptions(t *testing.T) {
	h := newHarness(t, "", WithQuietPeriod(100*time.Millisecond), WithPath("/catalog/search"))
	h.sync.Input("boots")
	h.wait(100 * time.Millisecond)

	assert.Equal(t, "/catalog/search?q=boots", h.nav.Last())
	assert.Equal(t, "/catalog/search", h.sync.Path())
}

func TestDispatcher(t *testing.T) {
	var queue []func()
	h := newHarness(t, "", WithDispatcher(func(fn func()) { queue = append(queue, fn) }))

	h.sync.Input("x")
	h.wait(DefaultQuietPeriod)
	assert.Zero(t, h.nav.Len(), "settle must wait for the dispatcher")
	require.Len(t, queue, 1)

	queue[0]()
	assert.Equal(t, "/search?q=x", h.nav.Last())
}

func TestClose(t *testing.T) {
	h := newHarness(t, "")
	h.sync.Input("x")
	h.sync.Close()
	h.wait(time.Second)
	h.sync.Input("y")
	h.wait(time.Second)

	assert.Zero(t, h.nav.Len())
	assert.Equal(t, "x", h.sync.Text())
	assert.False(t, h.sync.Pending())
}

func TestNilNavigator(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	s := New(urlparam.Params{}, nil, WithClock(clk))
	s.Input("x")
	clk.Step(DefaultQuietPeriod)
	assert.Equal(t, "x", s.Settled())
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		settled string
		want    string
	}{
		{"SetQuery", "", "shoes", "/search?q=shoes"},
		{"EncodesSpace", "", "red shoes", "/search?q=red%20shoes"},
		{"ClearQuery", "q=shoes&page=3", "", "/search"},
		{"AlwaysDropsPage", "page=9", "x", "/search?q=x"},
		{"ReplacesInPlace", "a=1&q=old&b=2", "new", "/search?a=1&q=new&b=2"},
		{"DropsDuplicateQuery", "q=1&q=2", "3", "/search?q=3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := urlparam.Parse(tt.raw)
			before := params.Encode()
			assert.Equal(t, tt.want, Target(params, tt.settled, DefaultPath))
			assert.Equal(t, before, params.Encode(), "Target must not mutate its input")
		})
	}
}
