package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceStore struct{ db *gorm.DB }

func (s *Store) Devices() *DeviceStore { return &DeviceStore{db: s.DB} }

var fingerprintColumns = []clause.Column{{Name: "user_id"}, {Name: "user_agent"}, {Name: "ip_address"}}

// Get returns the device only if it belongs to userID.
func (d *DeviceStore) Get(ctx context.Context, userID domain.UserID, id domain.DeviceID) (*domain.Device, error) {
	var dev domain.Device
	if err := d.db.WithContext(ctx).First(&dev, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, translate(err)
	}
	return &dev, nil
}

func (d *DeviceStore) FindByFingerprint(ctx context.Context, userID domain.UserID, userAgent, ip string) (*domain.Device, error) {
	var dev domain.Device
	err := d.db.WithContext(ctx).
		First(&dev, "user_id = ? AND user_agent = ? AND ip_address = ?", userID, userAgent, ip).Error
	if err != nil {
		return nil, translate(err)
	}
	return &dev, nil
}

// CreateIfAbsent inserts dev unless a row with the same fingerprint exists.
// When another writer got there first dev is replaced by the stored row and
// created is false.
func (d *DeviceStore) CreateIfAbsent(ctx context.Context, dev *domain.Device) (created bool, err error) {
	if dev.ID == uuid.Nil {
		dev.ID = uuid.New()
	}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: fingerprintColumns, DoNothing: true}).
		Create(dev)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	existing, err := d.FindByFingerprint(ctx, dev.UserID, dev.UserAgent, dev.IPAddress)
	if err != nil {
		return false, err
	}
	*dev = *existing
	return false, nil
}

// Touch marks the device active; geo is only overwritten when known.
func (d *DeviceStore) Touch(ctx context.Context, id domain.DeviceID, at time.Time, geo *domain.GeoLocation) error {
	fields := map[string]any{"last_active_at": at, "updated_at": at}
	if geo != nil {
		fields["geo_country"] = geo.Country
		fields["geo_region"] = geo.Region
		fields["geo_city"] = geo.City
		fields["geo_latitude"] = geo.Latitude
		fields["geo_longitude"] = geo.Longitude
	}
	return d.db.WithContext(ctx).Model(&domain.Device{}).Where("id = ?", id).Updates(fields).Error
}

func (d *DeviceStore) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Device, error) {
	var out []domain.Device
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_active_at DESC").
		Find(&out).Error
	return out, err
}

func (d *DeviceStore) Delete(ctx context.Context, userID domain.UserID, id domain.DeviceID) (int64, error) {
	res := d.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Device{})
	return res.RowsAffected, res.Error
}

func (d *DeviceStore) DeleteAllExcept(ctx context.Context, userID domain.UserID, keep domain.DeviceID) (int64, error) {
	res := d.db.WithContext(ctx).Where("user_id = ? AND id <> ?", userID, keep).Delete(&domain.Device{})
	return res.RowsAffected, res.Error
}
