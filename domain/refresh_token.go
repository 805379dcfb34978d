package domain

import "time"

// RefreshToken is the persisted record of an opaque refresh token. The token
// value itself is never stored, only its SHA-256 hash, which doubles as the
// record id.
//
// Within a chain at most one record has Used == false; every ancestor has been
// consumed by a rotation and points at its successor through ReplacedBy.
type RefreshToken struct {
	Hash           string     `bson:"_id" json:"-"`
	UserID         int64      `bson:"user_id" json:"user_id"`
	ChainID        string     `bson:"chain_id" json:"chain_id"`
	ParentHash     string     `bson:"parent_hash,omitempty" json:"-"`
	IssuedAt       time.Time  `bson:"issued_at" json:"issued_at"`
	ExpiresAt      time.Time  `bson:"expires_at" json:"expires_at"`
	ChainExpiresAt time.Time  `bson:"chain_expires_at" json:"chain_expires_at"`
	Used           bool       `bson:"used" json:"used"`
	UsedAt         *time.Time `bson:"used_at,omitempty" json:"used_at,omitempty"`
	ReplacedBy     string     `bson:"replaced_by,omitempty" json:"-"`
	Revoked        bool       `bson:"revoked" json:"revoked"`
	RevokedAt      *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	RevokeReason   string     `bson:"revoke_reason,omitempty" json:"revoke_reason,omitempty"`
}

// Revocation reasons recorded on soft-revoked refresh tokens.
const (
	RevokeReasonLogout = "logout"
	RevokeReasonReplay = "replay_detected"
	RevokeReasonAdmin  = "admin"
)

// IsExpired reports whether the token's own validity window has passed.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
