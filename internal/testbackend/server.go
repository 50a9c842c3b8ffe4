// Package testbackend runs an in-process feedback backend that speaks the same
// JSON contract as the production service. Tests, the loadtest command and the
// example server use it instead of a real deployment.
package testbackend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Endpoint paths relative to BaseURL.
const (
	EndpointRequest       = "/magic-link/request-magic-link"
	EndpointValidate      = "/magic-link/validate-magic-link"
	EndpointMagicFeedback = "/magic-link/feedback"
	EndpointFeedback      = "/feedback/"

	apiPrefix = "/api/v1"

	// ValidCaptcha is the only captcha proof the fake accepts.
	ValidCaptcha = "valid-captcha"
)

// Override replaces the normal handling of one endpoint.
type Override struct {
	Status int
	Body   string
	Delay  time.Duration
	// Hijack closes the connection without writing a response.
	Hijack bool
}

// Record is one stored feedback row.
type Record struct {
	ID        int       `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile,omitempty"`
	Rating    float64   `json:"rating"`
	Feedback  string    `json:"feedback"`
	Editable  bool      `json:"editable"`
	CreatedAt time.Time `json:"created_at"`
}

type link struct {
	email     string
	token     string
	expiresAt time.Time
	used      bool
}

// Server is the fake backend.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	now       func() time.Time
	ttl       time.Duration
	links     map[string]*link
	issued    map[string]string
	records   []Record
	calls     map[string]int
	overrides map[string]Override
	bodies    map[string][]byte
}

// New starts a fake backend. Close it with Server.Close.
func New() *Server {
	s := &Server{
		now:       time.Now,
		ttl:       24 * time.Hour,
		links:     make(map[string]*link),
		issued:    make(map[string]string),
		calls:     make(map[string]int),
		overrides: make(map[string]Override),
		bodies:    make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiPrefix+EndpointRequest, s.guard(EndpointRequest, s.handleRequest))
	mux.HandleFunc("POST "+apiPrefix+EndpointValidate, s.guard(EndpointValidate, s.handleValidate))
	mux.HandleFunc("POST "+apiPrefix+EndpointMagicFeedback, s.guard(EndpointMagicFeedback, s.handleMagicFeedback))
	mux.HandleFunc("POST "+apiPrefix+EndpointFeedback, s.guard(EndpointFeedback, s.handleCaptchaFeedback))
	mux.HandleFunc("GET "+apiPrefix+EndpointFeedback, s.guard("GET "+EndpointFeedback, s.handleList))

	s.Server = httptest.NewServer(mux)
	return s
}

// BaseURL is the API root clients should be configured with.
func (s *Server) BaseURL() string {
	return s.URL + apiPrefix
}

// SetClock replaces the clock used for link expiry.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetOverride forces the response of endpoint until cleared.
func (s *Server) SetOverride(endpoint string, o Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[endpoint] = o
}

// ClearOverride restores normal handling for endpoint.
func (s *Server) ClearOverride(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, endpoint)
}

// Calls returns how many requests reached endpoint.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// LastBody returns the raw body of the last request to endpoint.
func (s *Server) LastBody(endpoint string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.bodies[endpoint]...)
}

// IssuedToken returns the token delivered for email by the last request-link call.
func (s *Server) IssuedToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued[strings.ToLower(email)]
}

// Issue creates a link directly, standing in for email delivery.
func (s *Server) Issue(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(email)
}

// Records returns a copy of the stored feedback.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func (s *Server) guard(endpoint string, next func(http.ResponseWriter, []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.calls[endpoint]++
		s.bodies[endpoint] = body
		o, overridden := s.overrides[endpoint]
		s.mu.Unlock()

		if r.Method == http.MethodGet {
			body = []byte(r.URL.RawQuery)
		}

		if overridden {
			if o.Delay > 0 {
				select {
				case <-time.After(o.Delay):
				case <-r.Context().Done():
					return
				}
			}
			if o.Hijack {
				if hj, ok := w.(http.Hijacker); ok {
					conn, _, err := hj.Hijack()
					if err == nil {
						_ = conn.Close()
						return
					}
				}
				panic(http.ErrAbortHandler)
			}
			if o.Status != 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(o.Status)
				_, _ = io.WriteString(w, o.Body)
				return
			}
		}
		next(w, body)
	}
}

func (s *Server) issueLocked(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now()
	for _, l := range s.links {
		if l.email == email && !l.used && now.Before(l.expiresAt) {
			l.used = true
		}
	}
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	s.links[email+"|"+token] = &link{email: email, token: token, expiresAt: now.Add(s.ttl)}
	s.issued[email] = token
	return token
}

func (s *Server) validLocked(email, token string) *link {
	l, ok := s.links[strings.ToLower(strings.TrimSpace(email))+"|"+token]
	if !ok || l.used || !s.now().Before(l.expiresAt) {
		return nil
	}
	return l
}

func (s *Server) handleRequest(w http.ResponseWriter, body []byte) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &in); err != nil || !strings.Contains(in.Email, "@") {
		writeDetail(w, http.StatusUnprocessableEntity, "value is not a valid email address")
		return
	}
	s.mu.Lock()
	s.issueLocked(in.Email)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Magic link sent to your email",
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, body []byte) {
	var in struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.mu.Lock()
	l := s.validLocked(in.Email, in.Token)
	s.mu.Unlock()
	if l == nil {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired magic link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Magic link is valid",
		"expires_at": l.expiresAt.UTC().Format(time.RFC3339),
	})
}

type feedbackFields struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Mobile    string  `json:"mobile"`
	Rating    float64 `json:"rating"`
	Feedback  string  `json:"feedback"`
}

func (f feedbackFields) valid() bool {
	return f.FirstName != "" && f.LastName != "" && strings.Contains(f.Email, "@") &&
		f.Rating >= 1 && f.Rating <= 5 && f.Feedback != ""
}

func (s *Server) handleMagicFeedback(w http.ResponseWriter, body []byte) {
	var structured struct {
		FeedbackData *feedbackFields `json:"feedback_data"`
		Validation   *struct {
			Email string `json:"email"`
			Token string `json:"token"`
		} `json:"validation"`
	}
	var data feedbackFields
	var email, token string
	if err := json.Unmarshal(body, &structured); err == nil && structured.FeedbackData != nil && structured.Validation != nil {
		data = *structured.FeedbackData
		email, token = structured.Validation.Email, structured.Validation.Token
	} else {
		var flat struct {
			feedbackFields
			MagicToken string `json:"magic_token"`
		}
		if err := json.Unmarshal(body, &flat); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid request format")
			return
		}
		data, email, token = flat.feedbackFields, flat.Email, flat.MagicToken
	}
	if !data.valid() {
		writeDetail(w, http.StatusBadRequest, "Invalid structured request format")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.validLocked(email, token)
	if l == nil {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired magic link")
		return
	}
	if !strings.EqualFold(data.Email, l.email) {
		writeDetail(w, http.StatusBadRequest, "Email in feedback doesn't match the magic link email")
		return
	}
	rec := s.createLocked(data)
	l.used = true
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"message":     "Feedback submitted successfully",
		"feedback_id": strconv.Itoa(rec.ID),
	})
}

func (s *Server) handleCaptchaFeedback(w http.ResponseWriter, body []byte) {
	var in struct {
		feedbackFields
		CaptchaToken string `json:"captcha_token"`
	}
	if err := json.Unmarshal(body, &in); err != nil || !in.valid() {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid feedback")
		return
	}
	if in.CaptchaToken != ValidCaptcha {
		writeDetail(w, http.StatusBadRequest, "Invalid Captcha")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if strings.EqualFold(s.records[i].Email, in.Email) {
			if !s.records[i].Editable {
				writeDetail(w, http.StatusForbidden, "Feedback already edited once")
				return
			}
			rec := &s.records[i]
			rec.FirstName, rec.LastName, rec.Mobile = in.FirstName, in.LastName, in.Mobile
			rec.Rating, rec.Feedback, rec.Editable = in.Rating, in.Feedback, false
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	rec := s.createLocked(in.feedbackFields)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) createLocked(f feedbackFields) Record {
	rec := Record{
		ID:        len(s.records) + 1,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Email:     strings.ToLower(f.Email),
		Mobile:    f.Mobile,
		Rating:    f.Rating,
		Feedback:  f.Feedback,
		Editable:  true,
		CreatedAt: s.now().UTC().Add(time.Duration(len(s.records)) * time.Millisecond),
	}
	s.records = append(s.records, rec)
	return rec
}

func (s *Server) handleList(w http.ResponseWriter, rawQuery []byte) {
	q, _ := url.ParseQuery(string(rawQuery))
	page := atoiDefault(q.Get("page"), 1)
	size := atoiDefault(q.Get("size"), 5)
	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = "created_at"
	}
	desc := q.Get("sort_direction") != "asc"

	s.mu.Lock()
	items := append([]Record(nil), s.records...)
	s.mu.Unlock()

	less := func(a, b Record) bool {
		switch sortBy {
		case "rating":
			return a.Rating < b.Rating
		case "first_name":
			return a.FirstName < b.FirstName
		case "last_name":
			return a.LastName < b.LastName
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})

	total := len(items)
	pages := 1
	if size > 0 {
		pages = (total + size - 1) / size
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items[start:end],
		"total": total,
		"page":  page,
		"size":  size,
		"pages": pages,
	})
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
