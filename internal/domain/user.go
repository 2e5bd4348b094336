package domain

// User is the current account as supplied by the identity provider.
// MaxUploadSize is the per-user upload policy value in bytes; zero or
// negative means the server imposed no limit.
type User struct {
	ID            string
	Account       string
	MaxUploadSize int64
}

// UserRef is either a raw user id or a full user object. Member lists
// accept both; they are resolved to canonical ids at the boundary.
type UserRef interface {
	UserID() string
}

// UserID is a bare user identifier.
type UserID string

func (id UserID) UserID() string { return string(id) }

func (u User) UserID() string { return u.ID }
