package httpx

import "net/http"

// =============================================================================
// AUTHENTICATION STRATEGIES
// =============================================================================

// AuthConfig represents authentication configuration.
type AuthConfig interface {
	Apply(req *http.Request)
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (a NoAuth) Apply(req *http.Request) {}

// BearerToken uses Bearer token authentication. The synchronous Salesforce
// REST API authenticates with "Authorization: Bearer <session id>".
type BearerToken struct {
	Token string
}

// Apply adds a Bearer token header to the request.
func (a BearerToken) Apply(req *http.Request) {
	if a.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

// SessionHeader authenticates with a session id in a dedicated header.
// The Bulk API uses "X-SFDC-Session" rather than an Authorization header.
type SessionHeader struct {
	SessionID string
	Header    string // Header name (default: X-SFDC-Session)
}

// Apply adds the session header to the request.
func (a SessionHeader) Apply(req *http.Request) {
	if a.SessionID == "" {
		return
	}
	header := a.Header
	if header == "" {
		header = "X-SFDC-Session"
	}
	req.Header.Set(header, a.SessionID)
}
