package routes

import (
	"context"
	"math"
	"net/http"

	"github.com/ntentasd/ecobin-api/internal/cache"
	"github.com/ntentasd/ecobin-api/internal/ecoscore"
	"github.com/ntentasd/ecobin-api/internal/health"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/ntentasd/ecobin-api/pkg/utils"
)

const (
	defaultRanking = 10
	maxRanking     = 100
)

func (app *App) healthScoreHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		app.deviceHealthScore(w, r)
	case http.MethodPost:
		app.adhocHealthScore(w, r)
	default:
		utils.ReplyMethodNotAllowed(w)
	}
}

func (app *App) deviceHealthScore(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(r)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	if snap, ok := app.States.Get(deviceID); ok {
		utils.ReplyJSON(w, http.StatusOK, utils.Body{
			"data": snap.Health,
		})
		return
	}

	result, err := cache.Fetch(r.Context(), app.Cache, cache.HealthKey(deviceID), app.CacheTTL, app.Policy,
		func(ctx context.Context) (types.HealthScoreResult, error) {
			reading, err := app.Store.GetLatestReading(ctx, deviceID)
			if err != nil {
				return types.HealthScoreResult{}, err
			}
			return health.CalculateHealthScore(*reading), nil
		})
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": result,
	})
}

type healthScoreRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Gas         *float64 `json:"gas"`
	Weight      *float64 `json:"weight"`
}

// adhocHealthScore scores a reading supplied in the body without storing it.
func (app *App) adhocHealthScore(w http.ResponseWriter, r *http.Request) {
	var req healthScoreRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}
	if req.Temperature == nil || req.Humidity == nil || req.Gas == nil || req.Weight == nil {
		utils.ReplyBadRequest(w, "temperature, humidity, gas and weight are required")
		return
	}

	result := health.CalculateHealthScore(types.SensorReading{
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
		Gas:         *req.Gas,
		Weight:      *req.Weight,
	})

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": result,
	})
}

func (app *App) ecoScoreHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		app.deviceEcoScore(w, r)
	case http.MethodPost:
		app.recordEcoScore(w, r)
	default:
		utils.ReplyMethodNotAllowed(w)
	}
}

func (app *App) deviceEcoScore(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(r)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	grade, err := cache.Fetch(r.Context(), app.Cache, cache.EcoKey(deviceID), app.CacheTTL, app.Policy,
		func(ctx context.Context) (types.EcoScoreGrade, error) {
			score, _, err := app.Store.GetEcoScore(ctx, deviceID)
			if err != nil {
				return types.EcoScoreGrade{}, err
			}
			return ecoscore.Grade(score), nil
		})
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": grade,
	})
}

type ecoScoreRequest struct {
	DeviceID string   `json:"device_id"`
	Score    *float64 `json:"score"`
}

func (app *App) recordEcoScore(w http.ResponseWriter, r *http.Request) {
	var req ecoScoreRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}
	if req.Score == nil {
		utils.ReplyBadRequest(w, "missing score")
		return
	}

	deviceID := types.CanonicalDeviceID(req.DeviceID)
	if err := app.Eco.RecordEcoScore(r.Context(), deviceID, *req.Score); err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusCreated, utils.Body{
		"data": ecoscore.Grade(*req.Score),
	})
}

func (app *App) ecoGradeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}

	score, err := floatParam(r, "score")
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		utils.ReplyBadRequest(w, "invalid score")
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": ecoscore.Grade(score),
	})
}

func (app *App) rankingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}
	if app.Ranker == nil {
		utils.ReplyError(w, http.StatusNotImplemented, "ranking requires the valkey cache driver")
		return
	}

	limit, err := intParam(r, "limit", defaultRanking, maxRanking)
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	top, err := app.Ranker.TopEcoScores(r.Context(), limit)
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": top,
	})
}
