package events

type DeviceRevoked struct {
	DeviceID      string `json:"deviceId"`
	TokensRevoked int64  `json:"tokensRevoked"`
	Existed       bool   `json:"existed"`
}
