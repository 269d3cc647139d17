package routes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ntentasd/ecobin-api/internal/cache"
	"github.com/ntentasd/ecobin-api/internal/pairing"
	"github.com/ntentasd/ecobin-api/internal/retry"
	"github.com/ntentasd/ecobin-api/internal/state"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

// Store is the read side of the database used by the handlers.
type Store interface {
	GetDevicesByUserID(ctx context.Context, userID uuid.UUID) ([]types.Device, error)
	GetDeviceByID(ctx context.Context, deviceID uuid.UUID) (*types.Device, error)
	GetLatestReading(ctx context.Context, deviceID string) (*types.SensorReading, error)
	GetReadings(ctx context.Context, deviceID string, from, to time.Time) ([]types.SensorReading, error)
	GetEvents(ctx context.Context, deviceID string, from, to time.Time) ([]types.SensorEvent, error)
	GetEcoScore(ctx context.Context, deviceID string) (float64, time.Time, error)
}

type Pairer interface {
	Pair(ctx context.Context, userID uuid.UUID, deviceName string) (*pairing.Result, error)
}

type EcoRecorder interface {
	RecordEcoScore(ctx context.Context, deviceID string, score float64) error
}

type CommandPublisher interface {
	PublishCommand(ctx context.Context, deviceID, command string) error
}

// Deps are the collaborators of App. Ranker, Commands and Realtime may be
// nil; their routes then answer 501.
type Deps struct {
	Store    Store
	Cache    cache.Cache
	Ranker   cache.Ranker
	Pairer   Pairer
	Eco      EcoRecorder
	Commands CommandPublisher
	States   *state.Store[string, types.DeviceSnapshot]
	CacheTTL time.Duration
	Policy   retry.Policy
}

type App struct {
	Deps
	logger zerolog.Logger
}

func New(deps Deps, logger zerolog.Logger) *App {
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 5 * time.Minute
	}
	if deps.States == nil {
		deps.States = state.New[string, types.DeviceSnapshot]()
	}
	deps.Policy.Retryable = retryable

	return &App{
		Deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
	}
}
