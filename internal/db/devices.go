package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/ntentasd/ecobin-api/pkg/types"
)

var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrCredentialsNotFound = errors.New("device credentials not found")
)

type DeviceAlreadyExistsError struct {
	DeviceName string
}

func (e *DeviceAlreadyExistsError) Error() string {
	return fmt.Sprintf("device '%s' already exists", e.DeviceName)
}

func (e *DeviceAlreadyExistsError) Is(target error) bool {
	_, ok := target.(*DeviceAlreadyExistsError)
	return ok
}

func (db *DB) GetDevicesByUserID(ctx context.Context, userID uuid.UUID) (devices []types.Device, err error) {
	ctx, span := startSpan(ctx, "GetDevicesByUserID")
	defer func() { endSpan(span, err) }()
	defer observeRead("GetDevicesByUserID", time.Now())

	ctx, cancel := context.WithTimeout(ctx, time.Millisecond*500)
	defer cancel()

	iter := db.Meta.Query(`
SELECT device_id, device_name, paired_at
FROM devices
WHERE user_id = ?
`, gocql.UUID(userID)).WithContext(ctx).Iter()

	var (
		deviceID gocql.UUID
		name     string
		pairedAt time.Time
	)
	devices = []types.Device{}
	for iter.Scan(&deviceID, &name, &pairedAt) {
		uid := userID
		devices = append(devices, types.Device{
			DeviceID:   uuid.UUID(deviceID),
			DeviceName: name,
			UserID:     &uid,
			PairedAt:   pairedAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, err
	}

	return devices, nil
}

func (db *DB) GetDeviceByID(ctx context.Context, deviceID uuid.UUID) (dev *types.Device, err error) {
	ctx, span := startSpan(ctx, "GetDeviceByID")
	defer func() { endSpan(span, err) }()
	defer observeRead("GetDeviceByID", time.Now())

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var (
		userID   gocql.UUID
		name     string
		pairedAt time.Time
	)

	err = db.Meta.Query(`
SELECT user_id, device_name, paired_at
FROM devices
WHERE device_id = ?
ALLOW FILTERING
`, gocql.UUID(deviceID)).WithContext(ctx).Scan(&userID, &name, &pairedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	uid := uuid.UUID(userID)
	return &types.Device{
		DeviceID:   deviceID,
		DeviceName: name,
		UserID:     &uid,
		PairedAt:   pairedAt,
	}, nil
}

// RegisterDevice pairs a new device with a user. Names are unique per user,
// compared case-insensitively.
func (db *DB) RegisterDevice(ctx context.Context, userID uuid.UUID, deviceName string) (dev *types.Device, err error) {
	ctx, span := startSpan(ctx, "RegisterDevice")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	iter := db.Meta.Query(`
SELECT device_name FROM devices
WHERE user_id = ?
`, gocql.UUID(userID)).WithContext(ctx).Iter()

	var existing string
	for iter.Scan(&existing) {
		if strings.EqualFold(existing, deviceName) {
			_ = iter.Close()
			return nil, &DeviceAlreadyExistsError{
				DeviceName: deviceName,
			}
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	deviceID := uuid.New()
	pairedAt := time.Now().UTC().Truncate(time.Millisecond)

	err = db.Meta.Query(`
INSERT INTO devices (user_id, device_id, device_name, paired_at)
VALUES (?, ?, ?, ?)
`, gocql.UUID(userID), gocql.UUID(deviceID), deviceName, pairedAt).WithContext(ctx).Exec()
	if err != nil {
		return nil, err
	}

	return &types.Device{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		UserID:     &userID,
		PairedAt:   pairedAt,
	}, nil
}

// DeleteDevice unpairs a device and drops its credentials.
func (db *DB) DeleteDevice(ctx context.Context, userID, deviceID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "DeleteDevice")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	batch := db.Meta.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM devices WHERE user_id = ? AND device_id = ?`, gocql.UUID(userID), gocql.UUID(deviceID))
	batch.Query(`DELETE FROM device_credentials WHERE device_id = ?`, gocql.UUID(deviceID))
	return db.Meta.ExecuteBatch(batch)
}

func (db *DB) StoreDeviceCredentials(ctx context.Context, deviceID uuid.UUID, username, password string) (err error) {
	ctx, span := startSpan(ctx, "StoreDeviceCredentials")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	return db.Meta.Query(`
INSERT INTO device_credentials (device_id, mqtt_user, mqtt_pass)
VALUES (?, ?, ?)
`, gocql.UUID(deviceID), username, password).WithContext(ctx).Exec()
}

func (db *DB) GetDeviceCredentials(ctx context.Context, deviceID uuid.UUID) (creds *types.DeviceCredentials, err error) {
	ctx, span := startSpan(ctx, "GetDeviceCredentials")
	defer func() { endSpan(span, err) }()
	defer observeRead("GetDeviceCredentials", time.Now())

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var username, password string
	err = db.Meta.Query(`
SELECT mqtt_user, mqtt_pass
FROM device_credentials
WHERE device_id = ?
`, gocql.UUID(deviceID)).WithContext(ctx).Scan(&username, &password)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, err
	}

	return &types.DeviceCredentials{
		DeviceID: deviceID,
		Username: username,
		Password: password,
	}, nil
}
