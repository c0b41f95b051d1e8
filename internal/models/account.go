package models

import "time"

// Auth providers
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Account is a credential record in the accounts collection. The public
// profile lives separately in the users collection so roster subscribers
// never see credential fields.
type Account struct {
	UID          string    `bson:"_id" json:"uid"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash,omitempty" json:"-"`
	Name         string    `bson:"name" json:"name"`
	AvatarURL    string    `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Provider     string    `bson:"provider" json:"provider"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	LastLogin    time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
}

// Profile returns the public user view of this account.
func (a *Account) Profile() User {
	return User{
		UID:       a.UID,
		Name:      a.Name,
		AvatarURL: a.AvatarURL,
	}
}
