package models

import "time"

// OAuthIdentity is the profile extracted from a verified Google ID token.
type OAuthIdentity struct {
	SubjectID     string `json:"subjectId"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// User is an account known to QueryLinker.
type User struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	Name          string    `json:"name" db:"name"`
	PictureURL    string    `json:"pictureUrl,omitempty" db:"picture_url"`
	GoogleSubject string    `json:"-" db:"google_subject"`
	EmailVerified bool      `json:"emailVerified" db:"email_verified"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
