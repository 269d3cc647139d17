// Package pairing registers devices and provisions their MQTT credentials.
package pairing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ntentasd/ecobin-api/internal/emqx"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

var ErrInvalidName = errors.New("device_name is required")

const passwordBytes = 18

type DeviceStore interface {
	RegisterDevice(ctx context.Context, userID uuid.UUID, deviceName string) (*types.Device, error)
	DeleteDevice(ctx context.Context, userID, deviceID uuid.UUID) error
	StoreDeviceCredentials(ctx context.Context, deviceID uuid.UUID, username, password string) error
}

// Broker provisions MQTT users. *emqx.EmqxClient satisfies it.
type Broker interface {
	CreateUser(ctx context.Context, userID, password string, isSuperuser bool) (*emqx.CreateUserResponse, error)
	DeleteUser(ctx context.Context, userID string) error
}

type Result struct {
	Device      types.Device             `json:"device"`
	Credentials *types.DeviceCredentials `json:"credentials,omitempty"`
}

type Service struct {
	store  DeviceStore
	broker Broker
	logger zerolog.Logger
}

// New builds a Service. With a nil broker credentials are still generated
// and stored, but no MQTT user is created.
func New(store DeviceStore, broker Broker, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		broker: broker,
		logger: logger.With().Str("component", "pairing").Logger(),
	}
}

// Username is the MQTT user of a device.
func Username(deviceID uuid.UUID) string {
	return "ecobin-" + deviceID.String()
}

// Pair registers the device, creates its MQTT user when a broker is
// configured and stores the credentials. A failed provisioning unpairs the
// device again.
func (s *Service) Pair(ctx context.Context, userID uuid.UUID, deviceName string) (*Result, error) {
	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		return nil, ErrInvalidName
	}

	dev, err := s.store.RegisterDevice(ctx, userID, deviceName)
	if err != nil {
		return nil, err
	}

	creds, err := s.provision(ctx, dev.DeviceID)
	if err != nil {
		if rbErr := s.store.DeleteDevice(ctx, userID, dev.DeviceID); rbErr != nil {
			s.logger.Error().Err(rbErr).Str("device_id", dev.DeviceID.String()).Msg("rollback failed")
		}
		return nil, err
	}

	s.logger.Info().
		Str("device_id", dev.DeviceID.String()).
		Str("user_id", userID.String()).
		Bool("mqtt_user", s.broker != nil).
		Msg("device paired")
	return &Result{Device: *dev, Credentials: creds}, nil
}

func (s *Service) provision(ctx context.Context, deviceID uuid.UUID) (*types.DeviceCredentials, error) {
	password, err := newPassword()
	if err != nil {
		return nil, err
	}
	username := Username(deviceID)

	if s.broker != nil {
		if _, err := s.broker.CreateUser(ctx, username, password, false); err != nil {
			return nil, fmt.Errorf("failed to create mqtt user: %w", err)
		}
	}
	if err := s.store.StoreDeviceCredentials(ctx, deviceID, username, password); err != nil {
		if s.broker != nil {
			if delErr := s.broker.DeleteUser(ctx, username); delErr != nil {
				s.logger.Error().Err(delErr).Str("mqtt_user", username).Msg("failed to remove mqtt user")
			}
		}
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	return &types.DeviceCredentials{
		DeviceID: deviceID,
		Username: username,
		Password: password,
	}, nil
}

func newPassword() (string, error) {
	b := make([]byte, passwordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
