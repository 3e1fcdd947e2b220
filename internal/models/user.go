package models

import "time"

// User is an account record. PasswordHash is only populated by the
// authentication lookup.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"` // never serialize
	ProfilePicture string    `json:"profilePicture"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Author is the public projection of a user embedded in posts and comments.
type Author struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

func (u *User) Author() Author {
	return Author{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture}
}

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Username       string `json:"username" validate:"required,min=3,max=30"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=6"`
	ProfilePicture string `json:"profilePicture,omitempty" validate:"omitempty,url"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
