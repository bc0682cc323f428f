// Package search keeps the storefront search box, its debounced value and the
// `q` URL parameter in agreement.
//
// A Synchronizer receives every text change from the search input. The visible
// text updates immediately; the settled value follows once the input has been
// quiet for the quiet period (400ms by default). Each settle produces at most
// one navigation to the results path, built from the current URL parameter set
// with `q` set (or removed when empty) and `page` always removed, so a new
// search starts from the first page.
//
// The only settle that does not navigate is an empty one on a page that
// started without a query and whose URL still carries none, so there is
// nothing to clear. That keeps a page without a query from navigating on
// load. Clearing the box after a search always navigates with `q` removed,
// and a page that did carry a query is reconciled (and its pagination reset)
// as soon as it starts.
//
// A Synchronizer is normally driven by one goroutine. Debounced settles fire
// on the clock's goroutine; pass WithDispatcher to hand them back to the
// owner's event loop.
//
// # Usage
//
// A live session creates one Synchronizer per search box, routes debounced
// settles onto its event loop, and forwards keystrokes:
//
//	sync := search.New(urlparam.Parse(hs.Query), navigator,
//	    search.WithPath("/search"),
//	    search.WithDispatcher(session.Dispatch),
//	    search.WithOnSettle(recordSettle),
//	)
//	defer sync.Close()
//
//	sync.Start()            // page opened with ?q=foo&page=2: navigates to /search?q=foo
//	sync.Input("red shoes") // one navigation to /search?q=red%20shoes, 400ms later
//
// Tests drive time with a fake clock instead of sleeping:
//
//	clk := clocktesting.NewFakeClock(time.Now())
//	nav := &urlparam.Recorder{}
//	sync := search.New(urlparam.Parse("q=shoes&page=3"), nav, search.WithClock(clk))
//	sync.Input("")
//	clk.Step(search.DefaultQuietPeriod)
//	nav.Last() // "/search"
//
// Target computes a navigation target without a Synchronizer, for callers
// that render links:
//
//	search.Target(urlparam.Parse("sort=price&q=red&page=4"), "blue", "/search")
//	// "/search?sort=price&q=blue"
package search
