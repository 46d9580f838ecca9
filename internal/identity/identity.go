// Package identity defines the user/session identity key shared by the
// segmentation, experiment, and flow engines.
package identity

// Identity names a user or anonymous session. At least one of the two
// fields must be set; UserID takes precedence as the storage key.
type Identity struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Key returns the storage key for the identity and whether one exists.
func (i Identity) Key() (string, bool) {
	if i.UserID != "" {
		return i.UserID, true
	}
	if i.SessionID != "" {
		return i.SessionID, true
	}
	return "", false
}

// Anonymous reports whether the identity has a session but no stable user id.
func (i Identity) Anonymous() bool {
	return i.UserID == "" && i.SessionID != ""
}
