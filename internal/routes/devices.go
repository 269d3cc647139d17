package routes

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/ntentasd/ecobin-api/pkg/utils"
)

func (app *App) devicesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		app.listDevices(w, r)
	case http.MethodPost:
		app.pairDevice(w, r)
	default:
		utils.ReplyMethodNotAllowed(w)
	}
}

func (app *App) listDevices(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "user_id")
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	devices, err := app.Store.GetDevicesByUserID(r.Context(), userID)
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": devices,
	})
}

type pairRequest struct {
	UserID     uuid.UUID `json:"user_id"`
	DeviceName string    `json:"device_name"`
}

func (app *App) pairDevice(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}
	if req.UserID == uuid.Nil {
		utils.ReplyBadRequest(w, "missing user_id")
		return
	}

	res, err := app.Pairer.Pair(r.Context(), req.UserID, req.DeviceName)
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusCreated, utils.Body{
		"data": res,
	})
}

func (app *App) deviceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.ReplyMethodNotAllowed(w)
		return
	}

	deviceID, err := uuidParam(r, "device_id")
	if err != nil {
		utils.ReplyBadRequest(w, err.Error())
		return
	}

	dev, err := app.Store.GetDeviceByID(r.Context(), deviceID)
	if err != nil {
		app.replyErr(w, r, err)
		return
	}

	utils.ReplyJSON(w, http.StatusOK, utils.Body{
		"data": dev,
	})
}
