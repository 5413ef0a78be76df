package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Permissions is the fixed per-annotation access record. Each list holds
// principal identifiers (user ids or the world group); an empty list denies
// everyone except via the world group.
type Permissions struct {
	Read   []string `json:"read"`
	Update []string `json:"update"`
	Delete []string `json:"delete"`
}

// Annotation is a note anchored to a document URI. Tags carry both
// user-visible topical tags and encoded vote markers; a non-empty Refs chain
// marks the annotation as a reply, with the last element naming its parent.
type Annotation struct {
	ID          string
	UserID      string
	GroupID     string
	URI         string
	Text        string
	Tags        []string
	Refs        []string
	Permissions Permissions
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsReply reports whether the annotation is a reply to another annotation.
func (a Annotation) IsReply() bool {
	return len(a.Refs) > 0
}

// ParentID returns the direct parent of a reply, or "" for top-level
// annotations.
func (a Annotation) ParentID() string {
	if len(a.Refs) == 0 {
		return ""
	}
	return a.Refs[len(a.Refs)-1]
}

// FlagRecord marks an annotation as reported by a user.
type FlagRecord struct {
	ID           string
	AnnotationID string
	UserID       string
	Reason       string
	CreatedAt    time.Time
}
