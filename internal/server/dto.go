package server

import "safeplate/internal/domain"

type LoginRequest struct {
	Email    string `json:"email" minLength:"1" example:"chef@example.com"`
	Password string `json:"password" minLength:"1"`
}

type RegisterRequest struct {
	Name                 string `json:"name" minLength:"1" example:"Chef"`
	Email                string `json:"email" minLength:"3" example:"chef@example.com"`
	Password             string `json:"password" minLength:"8"`
	PasswordConfirmation string `json:"password_confirmation" minLength:"8"`
}

type UserResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type SessionResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type NameRequest struct {
	Name string `json:"name" minLength:"1" maxLength:"120" example:"Beurre doux"`
}

type userPath struct {
	ID int64 `path:"id" minimum:"1"`
}

func toUser(u domain.SessionUser) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
