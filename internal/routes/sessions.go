package routes

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ntentasd/ecobin-api/internal/cache"
	"github.com/ntentasd/ecobin-api/internal/progress"
	"github.com/ntentasd/ecobin-api/internal/session"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/ntentasd/ecobin-api/pkg/utils"
)

// sessionLookback bounds the events assembled into sessions.
const sessionLookback = 24 * time.Hour

var errNoProgress = errors.New("no processing start time available")

func (app *App) sessions(ctx context.Context, deviceID string) ([]types.FoodInputSession, error) {
	return cache.Fetch(ctx, app.Cache, cache.SessionsKey(deviceID), app.CacheTTL, app.Policy,
		func(ctx context.Context) ([]types.FoodInputSession, error) {
			now := time.Now().UTC()
			evs, err := app.Store.GetEvents(ctx, deviceID, now.Add(-sessionLookback), now)
			if err != nil {
				return nil, err
			}
			return session.Assemble(evs), nil
		})
}

func (app *App) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}

	deviceID, err := deviceParam(r)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	sessions, err := app.sessions(r.Context(), deviceID)
	if err != nil {
		app.replyErr(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []types.FoodInputSession{}
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": sessions,
	})
}

// progressHandler estimates processing progress of the device's current
// session. fallback_start (RFC3339) is used when no session carries a start.
func (app *App) progressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}

	deviceID, err := deviceParam(r)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	var fallback *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("fallback_start")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.ReplyBadRequest(w, "invalid fallback_start")
			return
		}
		fallback = &t
	}

	sessions, err := app.sessions(r.Context(), deviceID)
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	current := session.Current(sessions, deviceID)
	p := progress.Calculate(current, fallback)
	if p == nil {
		utils.ReplyNotFound(w, errNoProgress.Error())
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": utils.Body{
			"session":  current,
			"progress": p,
		},
	})
}

func (app *App) motorTimeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}

	diff, err := floatParam(r, "weight_diff")
	if err != nil || math.IsNaN(diff) || math.IsInf(diff, 0) {
		utils.ReplyBadRequest(w, "invalid weight_diff")
		return
	}

	d := progress.WeightToMotorTime(diff)
	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": utils.Body{
			"weight_diff":   diff,
			"motor_time_ms": d.Milliseconds(),
		},
	})
}

type commandRequest struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
}

func (app *App) commandsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.ReplyMethodNotAllowed(w)
		return
	}
	if app.Commands == nil {
		utils.ReplyError(w, http.StatusNotImplemented, "commands are disabled")
		return
	}

	var req commandRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}
	req.DeviceID = types.CanonicalDeviceID(req.DeviceID)
	req.Command = strings.TrimSpace(req.Command)
	if req.DeviceID == "" || req.Command == "" {
		utils.ReplyBadRequest(w, "device_id and command are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := app.Commands.PublishCommand(ctx, req.DeviceID, req.Command); err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusAccepted, utils.Body{
		"data": req,
	})
}
