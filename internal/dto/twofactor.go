package dto

type TwoFactorSetup struct {
	OTPAuthURL string `json:"otpauthUrl"`
	QRCode     string `json:"qrCode"`
	ManualSeed string `json:"manualSeed"`
}

// TwoFactorProof carries one of the two confirmation paths. EmailOTP wins
// when both are set.
type TwoFactorProof struct {
	TOTP     string `json:"totp,omitempty"`
	EmailOTP string `json:"emailOtp,omitempty"`
}
