package middleware

import (
	"context"
	"net/http"
	"strings"

	goFeedback "github.com/MrEthical07/goFeedback"
)

type sessionContextKey struct{}

// SessionFromContext returns the session injected by RequireTicket.
func SessionFromContext(ctx context.Context) (*goFeedback.MagicLinkSession, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*goFeedback.MagicLinkSession)
	return s, ok
}

// RequireTicket admits requests carrying a valid ticket for a pair that is
// still authorized. The injected session is closed when the handler returns.
func RequireTicket(client *goFeedback.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil {
				unauthorized(w)
				return
			}

			ticket, ok := ticketFromRequest(r, client.TicketCookieName())
			if !ok {
				unauthorized(w)
				return
			}

			mc, err := client.ParseTicket(ticket)
			if err != nil {
				unauthorized(w)
				return
			}

			session := client.ResumeAuthorized(r.Context(), mc.Email, mc.Token)
			defer session.Close()
			if !session.State().CanSubmit() {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, goFeedback.MessageInvalidOrExpired, http.StatusUnauthorized)
}

func ticketFromRequest(r *http.Request, cookieName string) (string, bool) {
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
