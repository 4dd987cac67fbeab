package dto

type TokenResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	TokenType    string      `json:"tokenType"`
	ExpiresIn    int64       `json:"expiresIn"`
	DeviceID     string      `json:"deviceId,omitempty"`
	User         *PublicUser `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
