package goFeedback

import (
	"net/url"
	"strings"
)

// Page is the top-level screen a frontend shows for a navigation.
type Page int

const (
	PageFeedback Page = iota
	PageAdmin
	PageMagicLinkValidate
	PageMagicLinkRequest
)

func (p Page) String() string {
	switch p {
	case PageFeedback:
		return "feedback"
	case PageAdmin:
		return "admin"
	case PageMagicLinkValidate:
		return "magic_link_validate"
	case PageMagicLinkRequest:
		return "magic_link_request"
	default:
		return "unknown"
	}
}

// ResolveView maps a navigation to the page to render. It has no side effects:
// "/admin" is the listing, "/magic" and "/feedback" are the magic-link page
// (validating when both email and token are present), anything else is the
// captcha feedback form.
func ResolveView(path string, query url.Values) Page {
	path = "/" + strings.Trim(path, "/")
	switch path {
	case "/admin":
		return PageAdmin
	case "/magic", "/feedback":
		if ContextFromQuery(query).Complete() {
			return PageMagicLinkValidate
		}
		return PageMagicLinkRequest
	default:
		return PageFeedback
	}
}
