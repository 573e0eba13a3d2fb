package http

import (
	"net/http"

	"github.com/developer387/doorbell-app-sub000/internal/api/http/converter"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

type AccessController struct {
	access service.AccessInteractor
}

func NewAccessController(access service.AccessInteractor) *AccessController {
	return &AccessController{access: access}
}

// SubmitPIN always answers 200 for a readable request: a wrong or expired
// PIN is a verdict, not a failure.
func (c *AccessController) SubmitPIN(ctx *gin.Context) {
	type PINRequest struct {
		PIN string `json:"pin"`
	}
	var req PINRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := c.access.SubmitPIN(ctx.Request.Context(), ctx.Param("propertyID"), req.PIN)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"verdict": res.Verdict.Kind,
		"granted": res.Verdict.Grants(),
		"message": res.Message,
		"guest":   converter.GuestToApi(res.Verdict.Guest),
		"locks": gin.H{
			"kind":  res.Authorization.Kind,
			"locks": converter.LocksToApi(res.Authorization.Locks),
		},
	})
}

func (c *AccessController) ShareLocks(ctx *gin.Context) {
	type ShareRequest struct {
		PIN       string   `json:"pin"`
		DeviceIDs []string `json:"device_ids"`
	}
	var req ShareRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	call, err := c.access.ShareLocks(ctx.Request.Context(), ctx.Param("callID"), req.PIN, req.DeviceIDs)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"call": converter.CallToApi(call)})
}

func (c *AccessController) Unlock(ctx *gin.Context) {
	if err := c.access.Unlock(ctx.Request.Context(), ctx.Param("callID"), ctx.Param("deviceID")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "unlocked"})
}

func (c *AccessController) Lock(ctx *gin.Context) {
	if err := c.access.Lock(ctx.Request.Context(), ctx.Param("callID"), ctx.Param("deviceID")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "locked"})
}

func (c *AccessController) IssueTemporaryCode(ctx *gin.Context) {
	var window domain.TimeWindow
	if err := ctx.ShouldBindJSON(&window); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	code, err := c.access.IssueTemporaryCode(ctx.Request.Context(), ctx.Param("callID"), ctx.Param("deviceID"), window)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"code": code})
}
