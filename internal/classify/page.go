package classify

import (
	"net/url"
	"strings"

	"github.com/eks-observability/access-relay/internal/core/domain"
)

// PathRule assigns a page category when the request URI contains Fragment.
type PathRule struct {
	Fragment string
	Category domain.PageCategory
}

// DefaultPathRules are the WordPress site-section prefixes, in precedence order.
var DefaultPathRules = []PathRule{
	{"/wp-admin", domain.PageAdmin},
	{"/wp-content/uploads", domain.PageMedia},
	{"/wp-json", domain.PageAPI},
	{"/wp-login.php", domain.PageLogin},
}

// SearchParam is the query parameter that marks a site search.
const SearchParam = "s"

// PageClassifier assigns a page category to requests without a file.
type PageClassifier struct {
	rules []PathRule
}

// NewPageClassifier creates a page classifier. With no rules it uses
// DefaultPathRules.
func NewPageClassifier(rules ...PathRule) *PageClassifier {
	if len(rules) == 0 {
		rules = DefaultPathRules
	}
	return &PageClassifier{rules: rules}
}

// Classify returns the first matching page category for uri. The order is
// collection namespace, path rules, search, then routing flags.
func (p *PageClassifier) Classify(uri string, rs domain.RoutingState) domain.PageCategory {
	reqPath, query := splitURI(uri)

	if IsCollectionPath(reqPath) {
		switch {
		case strings.Contains(reqPath, "/item/"):
			return domain.PageTainacanItem
		case strings.Contains(reqPath, "/collection/"):
			return domain.PageTainacanCollection
		default:
			return domain.PageTainacan
		}
	}

	for _, r := range p.rules {
		if strings.Contains(reqPath, r.Fragment) {
			return r.Category
		}
	}

	if query.Has(SearchParam) || strings.Contains(reqPath, "/search/") {
		return domain.PageSearch
	}

	switch {
	case rs.IsFrontPage:
		return domain.PageHomepage
	case rs.IsCategory:
		return domain.PageCategoryArchive
	case rs.IsTag:
		return domain.PageTag
	case rs.IsAuthor:
		return domain.PageAuthor
	case rs.IsArchive:
		return domain.PageArchive
	case rs.IsSingle:
		return domain.PageSingle
	case rs.IsPage:
		return domain.PagePage
	}

	return domain.PageUnknown
}

func splitURI(uri string) (string, url.Values) {
	rawPath, rawQuery, _ := strings.Cut(uri, "?")
	if p, err := url.PathUnescape(rawPath); err == nil {
		rawPath = p
	}
	q, _ := url.ParseQuery(rawQuery)
	return rawPath, q
}
