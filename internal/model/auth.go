package model

// EmailRequest asks the backend to send a verification code.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerificationRequest exchanges an emailed code for tokens.
type VerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// VerificationResponse is the token bundle returned on a successful code
// exchange. Expirations are epoch seconds.
type VerificationResponse struct {
	UserID              string  `json:"user_id"`
	Status              bool    `json:"status"`
	AccessToken         string  `json:"access_token"`
	RefreshToken        string  `json:"refresh_token"`
	TokenType           string  `json:"token_type"`
	AccessTokenExpires  float64 `json:"access_token_expires"`
	RefreshTokenExpires float64 `json:"refresh_token_expires"`
}

// RefreshTokenRequest asks for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshTokenResponse carries the replacement access token. The refresh
// token itself is unchanged by a refresh.
type RefreshTokenResponse struct {
	AccessToken        string  `json:"access_token"`
	TokenType          string  `json:"token_type"`
	AccessTokenExpires float64 `json:"access_token_expires"`
}

// StatusResponse is the generic {message, status} acknowledgment.
type StatusResponse struct {
	Message string `json:"message"`
	Status  bool   `json:"status"`
}
