package models

import "pairchat/internal/store"

// User is the identity-plus-presence record kept at users/{uid}. The
// signed-in client owns the online flag on its own record only; the flag is
// advisory and may be stale after an abnormal disconnect.
type User struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Online    bool   `json:"online"`
}

// Contact is a roster entry: another user annotated with the state the
// session controller derives for the signed-in viewer.
type Contact struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Online    bool   `json:"online"`
	Unread    int64  `json:"unread"`
	IsTyping  bool   `json:"is_typing"`
}

// UserFromDocument decodes a users/{uid} document.
func UserFromDocument(doc *store.Document) User {
	uid := doc.String("uid")
	if uid == "" {
		uid = doc.ID
	}
	return User{
		UID:       uid,
		Name:      doc.String("name"),
		AvatarURL: doc.String("avatar_url"),
		Online:    doc.Bool("online"),
	}
}

// Fields renders the user as store fields for a merge write.
func (u User) Fields() map[string]interface{} {
	return map[string]interface{}{
		"uid":        u.UID,
		"name":       u.Name,
		"avatar_url": u.AvatarURL,
		"online":     u.Online,
	}
}
