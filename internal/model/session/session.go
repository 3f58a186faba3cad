package session

import "time"

// Session captures the authentication context established with one target.
type Session struct {
	TargetID  string    `json:"targetId"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the session can still be used at the given instant.
func (s Session) Valid(now time.Time) bool {
	return s.TargetID != "" && now.Before(s.ExpiresAt)
}

// Grant is what an adapter hands back after establishing a session.
// A zero TTL means the manager's default lifetime applies.
type Grant struct {
	Token string
	TTL   time.Duration
}
