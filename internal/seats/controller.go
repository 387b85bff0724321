package seats

import (
	"net/http"

	"ticketly/internal/shared/middleware"
	"ticketly/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller interface {
	LockSeat(c *gin.Context)
	ReleaseSeat(c *gin.Context)
	ExtendLock(c *gin.Context)
	GetSeatLock(c *gin.Context)
	BatchGetSeats(c *gin.Context)
	GetMyLocks(c *gin.Context)
	GetAvailability(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) LockSeat(c *gin.Context) {
	eventID, seatTypeID, ok := parseSeatPath(c)
	if !ok {
		return
	}

	var req LockSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Not authenticated", nil, nil)
		return
	}

	lock, err := ctrl.service.Acquire(c.Request.Context(), userID, eventID, seatTypeID, req.SeatLabel)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Seat locked successfully", lock, nil)
}

func (ctrl *controller) ReleaseSeat(c *gin.Context) {
	eventID, seatTypeID, ok := parseSeatPath(c)
	if !ok {
		return
	}

	var req ReleaseSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Not authenticated", nil, nil)
		return
	}

	if err := ctrl.service.Release(c.Request.Context(), userID, eventID, seatTypeID, req.SeatLabel); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Seat released successfully", nil, nil)
}

func (ctrl *controller) ExtendLock(c *gin.Context) {
	eventID, seatTypeID, ok := parseSeatPath(c)
	if !ok {
		return
	}

	var req ExtendLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Not authenticated", nil, nil)
		return
	}

	lock, err := ctrl.service.Extend(c.Request.Context(), userID, eventID, seatTypeID, req.SeatLabel, req.AdditionalSeconds)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Lock extended successfully", lock, nil)
}

func (ctrl *controller) GetSeatLock(c *gin.Context) {
	eventID, seatTypeID, ok := parseSeatPath(c)
	if !ok {
		return
	}

	lock, err := ctrl.service.GetLock(c.Request.Context(), eventID, seatTypeID, c.Param("seatLabel"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if lock == nil {
		response.RespondJSON(c, "success", http.StatusOK, "Seat is available", gin.H{"locked": false}, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Seat lock retrieved", gin.H{"locked": true, "lock": lock}, nil)
}

func (ctrl *controller) BatchGetSeats(c *gin.Context) {
	_, seatTypeID, ok := parseSeatPath(c)
	if !ok {
		return
	}

	var req BatchGetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	seats, err := ctrl.service.BatchGetSeats(c.Request.Context(), seatTypeID, req.SeatLabels)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Seats retrieved successfully", seats, nil)
}

func (ctrl *controller) GetMyLocks(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid event ID", nil, err.Error())
		return
	}

	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Not authenticated", nil, nil)
		return
	}

	seats, err := ctrl.service.ListMyLocks(c.Request.Context(), eventID, userID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Locks retrieved successfully", seats, nil)
}

func (ctrl *controller) GetAvailability(c *gin.Context) {
	eventID, seatTypeID, ok := parseSeatPath(c)
	if !ok {
		return
	}

	available, err := ctrl.service.GetAvailability(c.Request.Context(), eventID, seatTypeID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Availability retrieved successfully",
		gin.H{"available_quantity": available}, nil)
}

func parseSeatPath(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid event ID", nil, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	seatTypeID, err := uuid.Parse(c.Param("seatTypeId"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid seat type ID", nil, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	return eventID, seatTypeID, true
}
