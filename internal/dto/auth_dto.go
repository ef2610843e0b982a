package dto

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginUserDTO struct {
	UserId       string `json:"user_id"`
	UserNickname string `json:"user_nickname"`
}

type LoginResponse struct {
	Messages              string       `json:"messages"`
	AccessToken           string       `json:"access_token"`
	AccessExpirationTime  int64        `json:"access_expiration_time"`
	RefreshToken          string       `json:"refresh_token"`
	RefreshExpirationTime int64        `json:"refresh_expiration_time"`
	TokenType             string       `json:"token_type"`
	User                  LoginUserDTO `json:"user"`
}

type RefreshResponse struct {
	AccessToken          string `json:"access_token"`
	AccessExpirationTime int64  `json:"access_expiration_time"`
}

type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email"`
	UserNickname string `json:"user_nickname" validate:"required"`
	Password     string `json:"password" validate:"required,min=8"`
}

type RegisterResponse struct {
	UserId       string `json:"user_id"`
	Email        string `json:"email"`
	UserNickname string `json:"user_nickname"`
}

type UserInfoResponse struct {
	UserId       string `json:"user_id"`
	Email        string `json:"email"`
	UserNickname string `json:"user_nickname"`
	CreatedAt    string `json:"created_at,omitempty"`
	LastLogin    string `json:"last_login,omitempty"`
}
