package dto

type RegisterRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type RegisterResponse struct {
	User                      *PublicUser `json:"user"`
	RequiresEmailVerification bool        `json:"requiresEmailVerification"`
}
