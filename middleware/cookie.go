package middleware

import (
	"net/http"

	goFeedback "github.com/MrEthical07/goFeedback"
)

// SetTicketCookie stores ticket in an HttpOnly cookie scoped to path.
func SetTicketCookie(w http.ResponseWriter, client *goFeedback.Client, ticket, path string, secure bool) {
	if path == "" {
		path = "/"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     client.TicketCookieName(),
		Value:    ticket,
		Path:     path,
		MaxAge:   int(client.TicketTTL().Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTicketCookie expires the ticket cookie.
func ClearTicketCookie(w http.ResponseWriter, client *goFeedback.Client, path string) {
	if path == "" {
		path = "/"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     client.TicketCookieName(),
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
