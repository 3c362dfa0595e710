// Package classify infers what a request was for: a file of some content
// category, or a kind of page.
//
// Both classifiers are pure functions of the request URI (and, for pages,
// the routing flags supplied by the host). They never touch the network or
// storage and are safe for concurrent use.
package classify

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/eks-observability/access-relay/internal/core/domain"
)

// Target is the parsed form of a request URI handed to each strategy.
type Target struct {
	Path  string
	Query url.Values
}

// Strategy is one extension-detection heuristic.
type Strategy interface {
	// Name identifies the heuristic in logs and tests.
	Name() string
	// Detect returns a lowercase extension and true when it matches.
	Detect(t Target, table *ExtensionTable) (string, bool)
}

// ContentClassifier runs its strategies in order; the first match wins.
type ContentClassifier struct {
	table      *ExtensionTable
	strategies []Strategy
}

// ContentOption configures a ContentClassifier.
type ContentOption func(*ContentClassifier)

// WithExtensionTable replaces the default extension table.
func WithExtensionTable(t *ExtensionTable) ContentOption {
	return func(c *ContentClassifier) {
		c.table = t
	}
}

// WithStrategies replaces the default strategy list.
func WithStrategies(s ...Strategy) ContentOption {
	return func(c *ContentClassifier) {
		c.strategies = s
	}
}

// WithStrategy appends a heuristic after the existing ones.
func WithStrategy(s Strategy) ContentOption {
	return func(c *ContentClassifier) {
		c.strategies = append(c.strategies, s)
	}
}

// DefaultStrategies returns the built-in heuristics in precedence order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		CollectionRoute{},
		ExplicitExtension{},
		SlugKeywords{Rules: DefaultKeywordRules},
		QueryParameter{},
	}
}

// NewContentClassifier creates a classifier with the default table and strategies.
func NewContentClassifier(opts ...ContentOption) *ContentClassifier {
	c := &ContentClassifier{
		table:      NewExtensionTable(DefaultExtensions),
		strategies: DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the detected extension (empty when none) and its category.
func (c *ContentClassifier) Classify(uri string) (string, domain.ContentCategory) {
	ext := c.Extension(uri)
	return ext, c.table.Category(ext)
}

// Extension runs the strategies against uri and returns the first match.
func (c *ContentClassifier) Extension(uri string) string {
	t, ok := parseTarget(uri)
	if !ok {
		return ""
	}
	for _, s := range c.strategies {
		if ext, ok := s.Detect(t, c.table); ok {
			return strings.ToLower(ext)
		}
	}
	return ""
}

// Table returns the extension table in use.
func (c *ContentClassifier) Table() *ExtensionTable {
	return c.table
}

func parseTarget(uri string) (Target, bool) {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		u, err = url.Parse(uri)
		if err != nil {
			return rawTarget(uri)
		}
	}
	if u.Path == "" {
		return Target{}, false
	}
	q, _ := url.ParseQuery(u.RawQuery)
	return Target{Path: u.Path, Query: q}, true
}

// rawTarget splits a URI that does not parse, such as one with a bad
// percent escape, without decoding it.
func rawTarget(uri string) (Target, bool) {
	uri, _, _ = strings.Cut(uri, "#")
	p, rawQuery, _ := strings.Cut(uri, "?")
	if p == "" {
		return Target{}, false
	}
	q, _ := url.ParseQuery(rawQuery)
	return Target{Path: p, Query: q}, true
}

// CollectionRoute recognises embedded collection routes (Tainacan), which
// serve files from slug URLs. The sub-route names the media type.
type CollectionRoute struct{}

func (CollectionRoute) Name() string { return "collection-route" }

var collectionSubRoutes = []struct {
	segment string
	ext     string
}{
	{"/document/", "pdf"},
	{"/image/", "jpg"},
	{"/audio/", "mp3"},
	{"/video/", "mp4"},
}

func (CollectionRoute) Detect(t Target, _ *ExtensionTable) (string, bool) {
	if !IsCollectionPath(t.Path) {
		return "", false
	}
	for _, sr := range collectionSubRoutes {
		if strings.Contains(t.Path, sr.segment) {
			return sr.ext, true
		}
	}
	return "pdf", true
}

// IsCollectionPath reports whether p lies in the collection namespace.
func IsCollectionPath(p string) bool {
	return strings.Contains(p, "/collection/") || strings.Contains(p, "/tainacan/")
}

var trailingExtension = regexp.MustCompile(`(?i)\.([a-z0-9]{2,6})$`)

// ExplicitExtension matches a literal trailing extension that is in the table.
type ExplicitExtension struct{}

func (ExplicitExtension) Name() string { return "explicit-extension" }

func (ExplicitExtension) Detect(t Target, table *ExtensionTable) (string, bool) {
	return tableExtension(t.Path, table)
}

func tableExtension(s string, table *ExtensionTable) (string, bool) {
	m := trailingExtension.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	ext := strings.ToLower(m[1])
	if !table.Contains(ext) {
		return "", false
	}
	return ext, true
}

// KeywordRule maps a slug pattern to an extension.
type KeywordRule struct {
	Ext     string
	Pattern *regexp.Regexp
}

// DefaultKeywordRules are checked in order against the final path segment.
var DefaultKeywordRules = []KeywordRule{
	{"pdf", regexp.MustCompile(`(?i)\b(pdf|documento|arquivo|file|doc)\b`)},
	{"jpg", regexp.MustCompile(`(?i)\b(jpg|jpeg|png|imagem|foto|image|photo|img)\b`)},
	{"mp3", regexp.MustCompile(`(?i)\b(mp3|audio|som|sound|music)\b`)},
	{"mp4", regexp.MustCompile(`(?i)\b(mp4|video|filme|movie)\b`)},
	{"zip", regexp.MustCompile(`(?i)\b(zip|compactado|arquivo|package)\b`)},
	{"doc", regexp.MustCompile(`(?i)\b(doc|docx|word|document)\b`)},
}

// SlugKeywords guesses a file type from words in a human-readable slug.
type SlugKeywords struct {
	Rules []KeywordRule
}

func (SlugKeywords) Name() string { return "slug-keyword" }

func (s SlugKeywords) Detect(t Target, _ *ExtensionTable) (string, bool) {
	slug := path.Base(t.Path)
	if slug == "/" || slug == "." {
		return "", false
	}
	for _, r := range s.Rules {
		if r.Pattern.MatchString(slug) {
			return r.Ext, true
		}
	}
	return "", false
}

// FileQueryParams are query parameters that may carry a file name.
var FileQueryParams = []string{"file", "attachment", "document", "arquivo"}

// QueryParameter looks for file names in query parameters and treats a
// numeric attachment_id as an image.
type QueryParameter struct{}

func (QueryParameter) Name() string { return "query-parameter" }

func (QueryParameter) Detect(t Target, table *ExtensionTable) (string, bool) {
	if len(t.Query) == 0 {
		return "", false
	}
	for _, key := range FileQueryParams {
		for _, v := range t.Query[key] {
			if ext, ok := tableExtension(v, table); ok {
				return ext, true
			}
		}
	}
	if isDigits(t.Query.Get("attachment_id")) {
		return "jpg", true
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
