package storefront

import (
	"embed"
	"html/template"
	"io"
	"strconv"

	"github.com/vango-dev/storefront/pkg/search"
	"github.com/vango-dev/storefront/pkg/urlparam"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// pageView is the data rendered by the search templates.
type pageView struct {
	Title      string
	SearchPath string
	ClientPath string
	Result     Result

	params urlparam.Params
}

// PageURL links to page n of the current search, keeping every other
// parameter. Page 1 carries no page parameter.
func (v pageView) PageURL(n int) string {
	p := v.params.Clone()
	if n <= 1 {
		p.Del(search.PageParam)
	} else {
		p.Set(search.PageParam, strconv.Itoa(n))
	}
	return p.WithPath(v.SearchPath)
}

// PrevURL links to the previous page.
func (v pageView) PrevURL() string {
	return v.PageURL(v.Result.Page - 1)
}

// NextURL links to the next page.
func (v pageView) NextURL() string {
	return v.PageURL(v.Result.Page + 1)
}

func renderPage(w io.Writer, v pageView) error {
	return pageTemplates.ExecuteTemplate(w, "search.html", v)
}

func renderResults(w io.Writer, v pageView) error {
	return pageTemplates.ExecuteTemplate(w, "results", v)
}

// parsePage reads the page parameter. Missing, non-numeric and
// non-positive values mean page 1.
func parsePage(params urlparam.Params) int {
	n, err := strconv.Atoi(params.Get(search.PageParam))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
