package events

const ViaRefreshToken = "refresh_token"

type LoginSucceeded struct {
	DeviceID  string `json:"deviceId,omitempty"`
	NewDevice bool   `json:"newDevice,omitempty"`
	Via       string `json:"via,omitempty"`
}

type LoggedOut struct {
	DeviceID string `json:"deviceId,omitempty"`
}

type OtherDevicesLoggedOut struct {
	RetainedDeviceID string `json:"retainedDeviceId"`
	DevicesRemoved   int64  `json:"devicesRemoved"`
	TokensRevoked    int64  `json:"tokensRevoked"`
}

type SuspiciousActivity struct {
	Reason string `json:"reason"`
}

type TwoFactorSetupStarted struct {
	EmailOTPSent bool `json:"emailOtpSent"`
}

type TwoFactorEnabled struct {
	Method string `json:"method"`
}

type TwoFactorEnableFailed struct {
	Method string `json:"method,omitempty"`
	Reason string `json:"reason"`
}
