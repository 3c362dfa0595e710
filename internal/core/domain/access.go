package domain

import (
	"net/http"
	"time"
)

// ContentCategory is the coarse classification of a requested resource.
type ContentCategory string

const (
	ContentWebpage  ContentCategory = "webpage"
	ContentImage    ContentCategory = "image"
	ContentAudio    ContentCategory = "audio"
	ContentVideo    ContentCategory = "video"
	ContentDocument ContentCategory = "document"
	ContentArchive  ContentCategory = "archive"
	ContentOther    ContentCategory = "other"
)

// PageCategory classifies a request that did not resolve to a file.
type PageCategory string

const (
	PageAdmin              PageCategory = "admin"
	PageMedia              PageCategory = "media"
	PageAPI                PageCategory = "api"
	PageLogin              PageCategory = "login"
	PageSearch             PageCategory = "search"
	PageHomepage           PageCategory = "homepage"
	PageCategoryArchive    PageCategory = "category"
	PageTag                PageCategory = "tag"
	PageAuthor             PageCategory = "author"
	PageArchive            PageCategory = "archive"
	PageSingle             PageCategory = "single"
	PagePage               PageCategory = "page"
	PageTainacanItem       PageCategory = "tainacan_item"
	PageTainacanCollection PageCategory = "tainacan_collection"
	PageTainacan           PageCategory = "tainacan"
	PageUnknown            PageCategory = "unknown"
)

// Trigger identifies what started a request cycle.
type Trigger string

const (
	TriggerInteractive Trigger = ""
	TriggerAjax        Trigger = "ajax"
	TriggerCron        Trigger = "cron"
	TriggerCLI         Trigger = "cli"
)

// Identity is an authenticated visitor as resolved by the host.
type Identity struct {
	DisplayName string
	Role        string
}

// RoutingState carries the routing flags computed by the host CMS.
// The classifier treats them as opaque booleans.
type RoutingState struct {
	IsFrontPage bool
	IsCategory  bool
	IsTag       bool
	IsAuthor    bool
	IsArchive   bool
	IsSingle    bool
	IsPage      bool

	// PostType and PostID describe the content item rendered on single and
	// page routes. Zero values mean no item.
	PostType string
	PostID   int64
}

// RequestContext is the immutable snapshot of one observed request.
type RequestContext struct {
	Method     string
	URI        string
	RemoteAddr string
	Headers    http.Header
	StatusCode int
	Identity   *Identity // nil for anonymous visitors
	Routing    RoutingState
	Trigger    Trigger
	RequestID  string
	Timestamp  time.Time
}

// UserAgent returns the request user agent or "Unknown".
func (rc *RequestContext) UserAgent() string {
	if rc.Headers != nil {
		if ua := rc.Headers.Get("User-Agent"); ua != "" {
			return ua
		}
	}
	return "Unknown"
}

// ClassificationResult is derived from a RequestContext.
// ContentCategory is ContentWebpage exactly when FileExtension is empty.
type ClassificationResult struct {
	FileExtension   string
	ContentCategory ContentCategory
	PageCategory    PageCategory

	// EstimatedSize is a synthetic byte count drawn from a bounded range.
	// It is not a measured response size.
	EstimatedSize int
}

// IsFile reports whether a file extension was detected.
func (cr ClassificationResult) IsFile() bool {
	return cr.FileExtension != ""
}

// RecordKind identifies which entry point produced a LogRecord.
type RecordKind string

const (
	RecordPageAccess  RecordKind = "page_access"
	RecordContentView RecordKind = "content_view"
	RecordLogin       RecordKind = "login"
	RecordLogout      RecordKind = "logout"
	RecordRegister    RecordKind = "register"
	RecordSubscribe   RecordKind = "subscribe"
)

// LogRecord is a formatted access line plus the fields it was built from.
type LogRecord struct {
	Kind      RecordKind
	ClientIP  string
	Identity  string
	Timestamp time.Time
	Method    string
	URI       string
	Status    int
	Size      int
	UserAgent string
	Tags      []string
	RequestID string

	// Line is the single-line text shipped to the collector.
	Line string
}

// Subscription holds the fields of a newsletter sign-up.
type Subscription struct {
	Email string
	Name  string
	Type  string
}

// DeliveryFailure describes a record that could not be shipped. It carries
// no record body; the journal is diagnostic only.
type DeliveryFailure struct {
	ID         string     `json:"id"`
	OccurredAt time.Time  `json:"occurred_at"`
	Endpoint   string     `json:"endpoint"`
	Kind       RecordKind `json:"kind"`
	RequestID  string     `json:"request_id,omitempty"`
	Error      string     `json:"error"`
	Bytes      int        `json:"bytes"`
}
