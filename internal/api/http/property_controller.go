package http

import (
	"net/http"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

type PropertyController struct {
	properties service.PropertyInteractor
}

func NewPropertyController(properties service.PropertyInteractor) *PropertyController {
	return &PropertyController{properties: properties}
}

func (c *PropertyController) CreateProperty(ctx *gin.Context) {
	type request struct {
		OwnerID   string `json:"owner_id" binding:"required"`
		Name      string `json:"name" binding:"required"`
		MasterPIN string `json:"master_pin"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	created, err := c.properties.CreateProperty(ctx.Request.Context(), req.OwnerID, req.Name, req.MasterPIN)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"property": created.Property, "token": created.Token})
}

func (c *PropertyController) GetProperty(ctx *gin.Context) {
	property, err := c.properties.GetProperty(ctx.Request.Context(), ctx.Param("propertyID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"property": property})
}

type guestRequest struct {
	Name         string    `json:"name" binding:"required"`
	StartTime    time.Time `json:"start_time" binding:"required"`
	EndTime      time.Time `json:"end_time" binding:"required"`
	AllowedLocks []string  `json:"allowed_locks"`
}

func (c *PropertyController) CreateGuest(ctx *gin.Context) {
	var req guestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	guest, err := c.properties.CreateGuest(ctx.Request.Context(), ctx.Param("propertyID"),
		req.Name, req.StartTime, req.EndTime, req.AllowedLocks)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"guest": guest})
}

func (c *PropertyController) UpdateGuest(ctx *gin.Context) {
	var req guestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if !req.EndTime.After(req.StartTime) {
		respondError(ctx, service.ErrInvalidWindow)
		return
	}

	guest := &domain.Guest{
		ID:           ctx.Param("guestID"),
		PropertyID:   ctx.Param("propertyID"),
		Name:         req.Name,
		StartTime:    req.StartTime.UTC().Format(time.RFC3339),
		EndTime:      req.EndTime.UTC().Format(time.RFC3339),
		AllowedLocks: req.AllowedLocks,
	}
	if err := c.properties.UpdateGuest(ctx.Request.Context(), guest); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"guest": guest})
}

func (c *PropertyController) RegeneratePIN(ctx *gin.Context) {
	guest, err := c.properties.RegenerateGuestPIN(ctx.Request.Context(), ctx.Param("propertyID"), ctx.Param("guestID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"guest": guest})
}

func (c *PropertyController) ListGuests(ctx *gin.Context) {
	guests, err := c.properties.ListGuests(ctx.Request.Context(), ctx.Param("propertyID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"guests": guests})
}

func (c *PropertyController) UpsertLock(ctx *gin.Context) {
	var lock domain.SmartLock
	if err := ctx.ShouldBindJSON(&lock); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if id := ctx.Param("deviceID"); id != "" {
		lock.DeviceID = id
	}

	if err := c.properties.UpsertLock(ctx.Request.Context(), ctx.Param("propertyID"), &lock); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"lock": lock})
}

func (c *PropertyController) RemoveLock(ctx *gin.Context) {
	if err := c.properties.RemoveLock(ctx.Request.Context(), ctx.Param("propertyID"), ctx.Param("deviceID")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *PropertyController) ListLocks(ctx *gin.Context) {
	locks, err := c.properties.ListLocks(ctx.Request.Context(), ctx.Param("propertyID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"locks": locks})
}
