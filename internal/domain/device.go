package domain

import "time"

const DeviceTypeWeb = "web"

// Device is a recognized session origin. (user_id, user_agent, ip_address) is
// unique so concurrent first logins from one fingerprint share a row.
type Device struct {
	ID           DeviceID    `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	UserID       UserID      `gorm:"type:uuid;not null;uniqueIndex:ux_devices_fingerprint,priority:1" db:"user_id" json:"-"`
	DeviceType   string      `gorm:"type:text;not null" db:"device_type" json:"deviceType"`
	UserAgent    string      `gorm:"type:text;not null;default:'';uniqueIndex:ux_devices_fingerprint,priority:2" db:"user_agent" json:"userAgent"`
	IPAddress    string      `gorm:"type:text;not null;default:'';uniqueIndex:ux_devices_fingerprint,priority:3" db:"ip_address" json:"ipAddress"`
	GeoLocation  GeoLocation `gorm:"embedded;embeddedPrefix:geo_" json:"geoLocation"`
	LastActiveAt time.Time   `gorm:"not null" db:"last_active_at" json:"lastActiveAt"`
	CreatedAt    time.Time   `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `gorm:"not null" db:"updated_at" json:"-"`
}

func (Device) TableName() string { return "devices" }

type GeoLocation struct {
	Country   *string  `gorm:"type:text" db:"country" json:"country,omitempty"`
	Region    *string  `gorm:"type:text" db:"region" json:"region,omitempty"`
	City      *string  `gorm:"type:text" db:"city" json:"city,omitempty"`
	Latitude  *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64 `db:"longitude" json:"longitude,omitempty"`
}

// Label picks the most precise place name available.
func (g *GeoLocation) Label() string {
	if g == nil {
		return "Unknown"
	}
	for _, s := range []*string{g.City, g.Region, g.Country} {
		if s != nil && *s != "" {
			return *s
		}
	}
	return "Unknown"
}
