package dto

import (
	"time"

	"identity/internal/domain"
)

type DeviceResponse struct {
	ID           string             `json:"id"`
	DeviceType   string             `json:"deviceType"`
	UserAgent    string             `json:"userAgent"`
	IPAddress    string             `json:"ipAddress"`
	Location     string             `json:"location"`
	GeoLocation  domain.GeoLocation `json:"geoLocation"`
	LastActiveAt time.Time          `json:"lastActiveAt"`
	CreatedAt    time.Time          `json:"createdAt"`
	Current      bool               `json:"current"`
}

func NewDeviceResponses(devices []domain.Device, current *domain.DeviceID) []DeviceResponse {
	out := make([]DeviceResponse, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		out = append(out, DeviceResponse{
			ID:           d.ID.String(),
			DeviceType:   d.DeviceType,
			UserAgent:    d.UserAgent,
			IPAddress:    d.IPAddress,
			Location:     d.GeoLocation.Label(),
			GeoLocation:  d.GeoLocation,
			LastActiveAt: d.LastActiveAt,
			CreatedAt:    d.CreatedAt,
			Current:      current != nil && *current == d.ID,
		})
	}
	return out
}

type LogoutOthersRequest struct {
	RefreshToken string `json:"refreshToken"`
}
