package main

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eks-observability/access-relay/pkg/relay"
)

type post struct {
	ID     int64
	Slug   string
	Title  string
	Author string
	Type   string
}

// catalog is the demo content. Posts live under /{year}/{month}/{slug},
// pages under /{slug}.
var catalog = []post{
	{ID: 1, Slug: "hello-world", Title: "Hello world", Author: "admin", Type: "post"},
	{ID: 7, Slug: "annual-report-pdf", Title: "Annual report", Author: "editor", Type: "post"},
	{ID: 2, Slug: "about", Title: "About us", Author: "admin", Type: "page"},
	{ID: 3, Slug: "donate", Title: "Donate", Author: "admin", Type: "page"},
}

var pageTemplate = template.Must(template.New("page").Parse(
	`<!doctype html><html><head><title>{{.Title}}</title></head><body><h1>{{.Title}}</h1><p>{{.Body}}</p></body></html>`))

type site struct {
	relay  *relay.Relay
	users  *userDirectory
	logger *slog.Logger
}

func newSite(r *relay.Relay, users *userDirectory, logger *slog.Logger) *site {
	return &site{relay: r, users: users, logger: logger}
}

func (s *site) routes() {
	r := s.relay.Router()

	r.Get("/", s.home)
	r.Get("/category/{slug}", s.archive(func(rs *relay.RoutingState) { rs.IsCategory = true }))
	r.Get("/tag/{slug}", s.archive(func(rs *relay.RoutingState) { rs.IsTag = true }))
	r.Get("/author/{name}", s.archive(func(rs *relay.RoutingState) { rs.IsAuthor = true }))
	r.Get("/{year}/{month}", s.archive(func(rs *relay.RoutingState) { rs.IsArchive = true }))
	r.Get("/{year}/{month}/{slug}", s.single)
	r.Get("/{slug}", s.page)
	r.Get("/wp-content/uploads/*", s.media)
	r.Get("/collection/*", s.media)

	r.Get("/wp-login.php", s.form("Log in"))
	r.Post("/wp-login.php", s.login)
	r.Get("/wp-logout.php", s.logout)
	r.Get("/wp-register.php", s.form("Register"))
	r.Post("/wp-register.php", s.register)
	r.Post("/wp-admin/admin-ajax.php", s.ajax)
	r.Get("/contact", s.form("Contact"))
	r.Post("/contact", s.contact)
}

func (s *site) render(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, map[string]string{"Title": title, "Body": body}); err != nil {
		s.logger.Error("failed to render page", slog.String("error", err.Error()))
	}
}

func (s *site) home(w http.ResponseWriter, r *http.Request) {
	relay.MarkRoute(r, func(rs *relay.RoutingState) { rs.IsFrontPage = true })
	if q := r.URL.Query().Get("s"); q != "" {
		s.render(w, http.StatusOK, "Search", "Results for "+q)
		return
	}
	s.render(w, http.StatusOK, "Home", "Welcome")
}

func (s *site) archive(mark func(rs *relay.RoutingState)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		relay.MarkRoute(r, mark)
		s.render(w, http.StatusOK, "Archive", r.URL.Path)
	}
}

func findPost(slug, postType string) (post, bool) {
	for _, p := range catalog {
		if p.Slug == slug && p.Type == postType {
			return p, true
		}
	}
	return post{}, false
}

func (s *site) single(w http.ResponseWriter, r *http.Request) {
	p, ok := findPost(chi.URLParam(r, "slug"), "post")
	if !ok {
		s.render(w, http.StatusNotFound, "Not found", r.URL.Path)
		return
	}
	relay.MarkRoute(r, func(rs *relay.RoutingState) {
		rs.IsSingle = true
		rs.PostType = p.Type
		rs.PostID = p.ID
	})
	s.render(w, http.StatusOK, p.Title, "by "+p.Author)
}

func (s *site) page(w http.ResponseWriter, r *http.Request) {
	p, ok := findPost(chi.URLParam(r, "slug"), "page")
	if !ok {
		s.render(w, http.StatusNotFound, "Not found", r.URL.Path)
		return
	}
	relay.MarkRoute(r, func(rs *relay.RoutingState) {
		rs.IsPage = true
		rs.PostType = p.Type
		rs.PostID = p.ID
	})
	s.render(w, http.StatusOK, p.Title, "")
}

// media stands in for uploaded files and collection items.
func (s *site) media(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	fmt.Fprintf(w, "demo file %s\n", r.URL.Path)
}

func (s *site) form(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusOK, title, "")
	}
}

func (s *site) login(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("log")
	id, ok := s.users.lookup(name)
	if !ok {
		s.render(w, http.StatusUnauthorized, "Log in", "unknown user")
		return
	}

	rc := s.relay.Observer().Snapshot(r, http.StatusOK)
	rc.Identity = id
	s.relay.Pipeline().Login(rc)

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id.DisplayName, Path: "/", HttpOnly: true})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *site) logout(w http.ResponseWriter, r *http.Request) {
	s.relay.Pipeline().Logout(s.relay.Observer().Snapshot(r, http.StatusOK))

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *site) register(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("user_login")
	if name == "" || !s.users.add(name, "subscriber") {
		s.render(w, http.StatusConflict, "Register", "name unavailable")
		return
	}

	rc := s.relay.Observer().Snapshot(r, http.StatusOK)
	rc.Identity = &relay.Identity{DisplayName: name, Role: "subscriber"}
	s.relay.Pipeline().Registered(rc)

	s.render(w, http.StatusOK, "Register", "welcome "+name)
}

func (s *site) ajax(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("action") != "subscribe_user" {
		http.Error(w, "0", http.StatusBadRequest)
		return
	}

	sub := relay.Subscription{
		Email: r.PostFormValue("email"),
		Name:  r.PostFormValue("name"),
		Type:  r.PostFormValue("newsletter_type"),
	}
	s.relay.Pipeline().Subscribed(s.relay.Observer().Snapshot(r, http.StatusOK), sub)

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"success":true}`))
}

func (s *site) contact(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "Contact", "invalid form")
		return
	}
	fields := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	s.relay.Pipeline().ContactFormSubmitted(s.relay.Observer().Snapshot(r, http.StatusOK), fields)

	s.render(w, http.StatusOK, "Contact", "thanks")
}
