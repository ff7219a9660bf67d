package fetch

import (
	"bytes"
	"net/http"
	"strings"
)

// ChallengeMarkers are fragments only found on anti-bot interstitials.
var ChallengeMarkers = []string{
	"Just a moment...",
	"cf-browser-verification",
	"/cdn-cgi/challenge-platform/",
	"cf_chl_opt",
	"Attention Required! | Cloudflare",
	"Checking your browser before accessing",
	"Enable JavaScript and cookies to continue",
}

// IsChallenge reports whether a response is an anti-bot challenge page.
func IsChallenge(header http.Header, body []byte) bool {
	if strings.EqualFold(header.Get("cf-mitigated"), "challenge") {
		return true
	}
	for _, marker := range ChallengeMarkers {
		if bytes.Contains(body, []byte(marker)) {
			return true
		}
	}
	return false
}
