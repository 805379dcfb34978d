package domain

import "time"

// SSOState is the anti-forgery value bound to one authorization request.
type SSOState struct {
	State       string     `bson:"_id" json:"state"`
	Provider    string     `bson:"provider" json:"provider"`
	RedirectURI string     `bson:"redirect_uri" json:"redirect_uri"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time  `bson:"expires_at" json:"expires_at"`
	UsedAt      *time.Time `bson:"used_at,omitempty" json:"used_at,omitempty"`
}

// IsExpired reports whether the state is past its time-to-live.
func (s *SSOState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SSOCallbackData carries what the provider sent back to the callback URL.
// It exists only for the duration of one callback.
type SSOCallbackData struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	RedirectURI      string
}
