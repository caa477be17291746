package authapi

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// tokenResponse is the body of login and refresh. The refresh secret travels
// only in the cookie.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type meResponse struct {
	User  string `json:"user"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
