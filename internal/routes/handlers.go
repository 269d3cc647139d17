package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ntentasd/ecobin-api/internal/db"
	"github.com/ntentasd/ecobin-api/internal/emqx"
	"github.com/ntentasd/ecobin-api/internal/events"
	"github.com/ntentasd/ecobin-api/internal/pairing"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/ntentasd/ecobin-api/pkg/utils"
)

var errMissingDevice = errors.New("missing device_id")

func healthHandler(w http.ResponseWriter, r *http.Request) {
	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"state": "healthy",
	})
}

func (app *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	if err := app.Cache.Ping(ctx); err != nil {
		utils.ReplyJSON(w, http.StatusServiceUnavailable, utils.Body{
			"state": "unavailable",
			"error": err.Error(),
		})
		return
	}
	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"state": "ready",
	})
}

// retryable keeps not-found style errors from being retried by loaders.
func retryable(err error) bool {
	switch {
	case errors.Is(err, db.ErrNoReadings),
		errors.Is(err, db.ErrNoEcoScore),
		errors.Is(err, db.ErrDeviceNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// replyErr maps domain errors to status codes.
func (app *App) replyErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrDeviceNotFound),
		errors.Is(err, db.ErrNoReadings),
		errors.Is(err, db.ErrNoEcoScore):
		utils.ReplyNotFound(w, err.Error())
	case errors.Is(err, &db.DeviceAlreadyExistsError{}),
		errors.Is(err, emqx.ErrUserExists):
		utils.ReplyConflict(w, err.Error())
	case errors.Is(err, pairing.ErrInvalidName),
		errors.Is(err, events.ErrInvalidScore),
		errors.Is(err, types.ErrInvalidReading):
		utils.ReplyBadRequest(w, err.Error())
	default:
		app.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		utils.ReplyInternalServerError(w, err.Error())
	}
}

func deviceParam(r *http.Request) (string, error) {
	id := types.CanonicalDeviceID(r.URL.Query().Get("device_id"))
	if id == "" {
		return "", errMissingDevice
	}
	return id, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing %s", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// intParam parses an optional positive int, clamped to upper.
func intParam(r *http.Request, name string, def, upper int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return min(v, upper), nil
}

func floatParam(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func durationParam(r *http.Request, name string, def, upper time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 || d > upper {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}
