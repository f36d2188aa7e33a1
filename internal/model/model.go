package model

import "time"

// RefreshAccessTokenError marks a session whose access token could not be renewed.
// The session is kept so the client can observe the flag and sign in again.
const RefreshAccessTokenError = "RefreshAccessTokenError"

// Identity is the signed-in Google user, taken from the verified ID token.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Session is the decoded content of the session cookie.
type Session struct {
	ID           string    `json:"sid"`
	User         Identity  `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Error        string    `json:"error,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Expired reports whether the access token is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Usable reports whether the session can authorize a storage call.
func (s *Session) Usable() bool {
	return s != nil && s.Error == "" && s.AccessToken != ""
}

// UploadedFile is a file received in a multipart request, spooled to a temp file.
type UploadedFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Path     string `json:"-"`
}

// RemoteFile is the record returned by the storage provider after creation.
type RemoteFile struct {
	ID string `json:"fileId"`
}
