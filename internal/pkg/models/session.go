package models

// Session identifies the volunteer this agent runs for. Authentication is
// handled by an external identity provider; the agent only carries the
// resulting id, display name and bearer token.
type Session struct {
	UserID   string
	Username string
	Token    string
}
