package domain

import "time"

// UserFederatedIdentity links a local user account to a subject at an external
// identity provider. The (provider, provider_user_id) pair is unique.
type UserFederatedIdentity struct {
	ID             string    `bson:"_id,omitempty" json:"id,omitempty"`
	UserID         int64     `bson:"user_id" json:"user_id"`
	Provider       string    `bson:"provider" json:"provider"`
	ProviderUserID string    `bson:"provider_user_id" json:"provider_user_id"`
	ProviderEmail  string    `bson:"provider_email,omitempty" json:"provider_email,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
