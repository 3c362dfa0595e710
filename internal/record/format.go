// Package record renders access records in Apache combined log shape with
// bracketed tags appended for role, content classification and events.
package record

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/eks-observability/access-relay/internal/clientip"
	"github.com/eks-observability/access-relay/internal/core/domain"
)

// TimeLayout is the Apache access log timestamp layout.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

const (
	anonymousName  = "anonymous"
	guestRole      = "guest"
	subscriberRole = "subscriber"
	subscribeName  = "subscribe_user"
)

// Fixed request lines for event records.
const (
	loginPath     = "/wp-login.php"
	logoutPath    = "/wp-logout.php"
	registerPath  = "/wp-register.php"
	subscribePath = "/wp-admin/admin-ajax.php"
)

// Formatter builds LogRecords. It holds no per-request state.
type Formatter struct {
	now  func() time.Time
	intn func(int) int
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithClock sets the time source used when a RequestContext has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) {
		f.now = now
	}
}

// WithIntN sets the random source for synthetic sizes. intn must return a
// value in [0, n).
func WithIntN(intn func(int) int) Option {
	return func(f *Formatter) {
		f.intn = intn
	}
}

// NewFormatter creates a Formatter.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{
		now:  time.Now,
		intn: defaultIntN,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// EstimateSize draws a synthetic response size for the classification.
func (f *Formatter) EstimateSize(cr domain.ClassificationResult, rs domain.RoutingState) int {
	return RangeFor(cr, rs).draw(f.intn)
}

// Format renders a page-access record. A zero EstimatedSize is filled in
// from the synthetic ranges.
func (f *Formatter) Format(rc *domain.RequestContext, cr domain.ClassificationResult) domain.LogRecord {
	size := cr.EstimatedSize
	if size == 0 {
		size = f.EstimateSize(cr, rc.Routing)
	}

	name, role := anonymousName, guestRole
	if rc.Identity != nil {
		name = orDefault(rc.Identity.DisplayName, anonymousName)
		role = orDefault(rc.Identity.Role, guestRole)
	}

	return f.build(rc, domain.RecordPageAccess, name, rc.Method, rc.URI, rc.StatusCode, size,
		RoleTag(role), ClassificationTag(cr))
}

// ContentView renders the content-item record emitted for single and page routes.
func (f *Formatter) ContentView(rc *domain.RequestContext) domain.LogRecord {
	name := anonymousName
	if rc.Identity != nil {
		name = orDefault(rc.Identity.DisplayName, anonymousName)
	}
	size := ContentSizes.draw(f.intn)
	tag := fmt.Sprintf("[CONTENT:%s:ID:%d]", clean(orDefault(rc.Routing.PostType, "post")), rc.Routing.PostID)
	return f.build(rc, domain.RecordContentView, name, "GET", rc.URI, 200, size, tag)
}

// Login renders a login event for the identity on rc.
func (f *Formatter) Login(rc *domain.RequestContext) domain.LogRecord {
	name, role := identityOf(rc, guestRole)
	return f.build(rc, domain.RecordLogin, name, "POST", loginPath, 200, LoginSizes.draw(f.intn),
		"[LOGIN:ROLE:"+role+"]")
}

// Logout renders a logout event for the identity on rc.
func (f *Formatter) Logout(rc *domain.RequestContext) domain.LogRecord {
	name, role := identityOf(rc, guestRole)
	return f.build(rc, domain.RecordLogout, name, "GET", logoutPath, 200, LogoutSizes.draw(f.intn),
		"[LOGOUT:ROLE:"+role+"]")
}

// Register renders a registration event. Accounts without a role are
// reported as subscribers.
func (f *Formatter) Register(rc *domain.RequestContext) domain.LogRecord {
	name, role := identityOf(rc, subscriberRole)
	return f.build(rc, domain.RecordRegister, name, "POST", registerPath, 200, RegisterSizes.draw(f.intn),
		"[REGISTER:ROLE:"+role+"]")
}

// Subscribe renders a newsletter subscription. An empty path uses the
// ajax endpoint.
func (f *Formatter) Subscribe(rc *domain.RequestContext, sub domain.Subscription, path string) domain.LogRecord {
	sub = SanitizeSubscription(sub)
	tag := fmt.Sprintf("[SUBSCRIBE:email:%s:name:%s:type:%s]", sub.Email, sub.Name, sub.Type)
	return f.build(rc, domain.RecordSubscribe, subscribeName, "POST", orDefault(path, subscribePath), 200,
		SubscribeSizes.draw(f.intn), RoleTag(guestRole), tag)
}

func (f *Formatter) build(rc *domain.RequestContext, kind domain.RecordKind, identity, method, uri string,
	status, size int, tags ...string) domain.LogRecord {
	ts := rc.Timestamp
	if ts.IsZero() {
		ts = f.now()
	}

	rec := domain.LogRecord{
		Kind:      kind,
		ClientIP:  clientip.Resolve(rc.Headers, rc.RemoteAddr),
		Identity:  clean(identity),
		Timestamp: ts,
		Method:    clean(method),
		URI:       clean(uri),
		Status:    status,
		Size:      size,
		UserAgent: clean(rc.UserAgent()),
		Tags:      tags,
		RequestID: rc.RequestID,
	}

	rec.Line = fmt.Sprintf(`%s - %s [%s] "%s %s HTTP/1.1" %d %d "-" "%s" %s`,
		rec.ClientIP,
		rec.Identity,
		ts.Format(TimeLayout),
		rec.Method,
		quoteEscape(rec.URI),
		rec.Status,
		rec.Size,
		quoteEscape(rec.UserAgent),
		strings.Join(tags, " "),
	)
	return rec
}

// RoleTag renders the user role tag.
func RoleTag(role string) string {
	return "[USER_ROLE:" + clean(role) + "]"
}

// ClassificationTag renders [FILE:category:ext:size] for files and
// [PAGE:category] otherwise.
func ClassificationTag(cr domain.ClassificationResult) string {
	if cr.IsFile() {
		return fmt.Sprintf("[FILE:%s:%s:%s]", cr.ContentCategory, cr.FileExtension, NominalSize(cr.FileExtension))
	}
	page := cr.PageCategory
	if page == "" {
		page = domain.PageUnknown
	}
	return fmt.Sprintf("[PAGE:%s]", page)
}

func identityOf(rc *domain.RequestContext, defaultRole string) (string, string) {
	if rc.Identity == nil {
		return anonymousName, defaultRole
	}
	return orDefault(rc.Identity.DisplayName, anonymousName), orDefault(rc.Identity.Role, defaultRole)
}

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// SanitizeSubscription normalises user-supplied subscription fields.
func SanitizeSubscription(sub domain.Subscription) domain.Subscription {
	out := domain.Subscription{
		Email: "unknown@example.com",
		Name:  sanitizeText(sub.Name),
		Type:  sanitizeText(sub.Type),
	}
	if addr, err := mail.ParseAddress(strings.TrimSpace(sub.Email)); err == nil {
		out.Email = addr.Address
	}
	if out.Name == "" {
		out.Name = "Anonymous"
	}
	if out.Type == "" {
		out.Type = "general"
	}
	return out
}

func sanitizeText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = spaceRun.ReplaceAllString(clean(s), " ")
	return strings.TrimSpace(s)
}

// clean replaces control characters so a record always stays on one line.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}

func quoteEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
