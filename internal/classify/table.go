package classify

import (
	"sort"
	"strings"

	"github.com/eks-observability/access-relay/internal/core/domain"
)

// ExtensionTable maps lowercase file extensions to content categories.
type ExtensionTable struct {
	byExt map[string]domain.ContentCategory
}

// DefaultExtensions is the built-in category table.
var DefaultExtensions = map[domain.ContentCategory][]string{
	domain.ContentImage:    {"jpg", "jpeg", "png", "gif", "webp", "svg", "bmp"},
	domain.ContentAudio:    {"mp3", "wav", "ogg", "m4a", "aac", "flac"},
	domain.ContentVideo:    {"mp4", "avi", "mov", "wmv", "flv", "webm", "mkv"},
	domain.ContentDocument: {"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt"},
	domain.ContentArchive:  {"zip", "rar", "7z", "tar", "gz"},
}

// NewExtensionTable builds a table from category groups. Later groups
// override earlier ones for the same extension.
func NewExtensionTable(groups ...map[domain.ContentCategory][]string) *ExtensionTable {
	t := &ExtensionTable{byExt: make(map[string]domain.ContentCategory)}
	for _, g := range groups {
		// Sorted so overlapping entries inside one group resolve the same way every run.
		cats := make([]string, 0, len(g))
		for c := range g {
			cats = append(cats, string(c))
		}
		sort.Strings(cats)
		for _, c := range cats {
			for _, ext := range g[domain.ContentCategory(c)] {
				t.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = domain.ContentCategory(c)
			}
		}
	}
	return t
}

// Contains reports whether ext is in the table.
func (t *ExtensionTable) Contains(ext string) bool {
	_, ok := t.byExt[strings.ToLower(ext)]
	return ok
}

// Category maps an extension to its category. Unknown extensions map to
// ContentOther and an empty extension maps to ContentWebpage.
func (t *ExtensionTable) Category(ext string) domain.ContentCategory {
	if ext == "" {
		return domain.ContentWebpage
	}
	if c, ok := t.byExt[strings.ToLower(ext)]; ok {
		return c
	}
	return domain.ContentOther
}
