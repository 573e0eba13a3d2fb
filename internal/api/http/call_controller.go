package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/developer387/doorbell-app-sub000/internal/api/http/converter"
	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/service"
	"github.com/developer387/doorbell-app-sub000/lib/logger/sl"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

type CallController struct {
	calls    service.CallInteractor
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewCallController(calls service.CallInteractor, log *slog.Logger) *CallController {
	if log == nil {
		log = slog.Default()
	}
	return &CallController{
		calls: calls,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *CallController) CreateCall(ctx *gin.Context) {
	type CreateCallRequest struct {
		PropertyID string                     `json:"property_id" binding:"required"`
		Offer      *webrtc.SessionDescription `json:"offer" binding:"required"`
	}
	var req CreateCallRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	created, err := c.calls.CreateCall(ctx.Request.Context(), req.PropertyID, req.Offer)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"call": converter.CallToApi(created.Call), "token": created.Token})
}

func (c *CallController) GetCall(ctx *gin.Context) {
	call, err := c.calls.GetCall(ctx.Request.Context(), ctx.Param("callID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"call": converter.CallToApi(call)})
}

func (c *CallController) WriteAnswer(ctx *gin.Context) {
	type AnswerRequest struct {
		Answer *webrtc.SessionDescription `json:"answer" binding:"required"`
	}
	var req AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	claims := claimsFrom(ctx)
	if err := c.calls.WriteAnswer(ctx.Request.Context(), ctx.Param("callID"), claims.Role, req.Answer); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *CallController) AddCandidate(ctx *gin.Context) {
	type CandidateRequest struct {
		Candidate *webrtc.ICECandidateInit `json:"candidate" binding:"required"`
	}
	var req CandidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	claims := claimsFrom(ctx)
	if err := c.calls.AddCandidate(ctx.Request.Context(), ctx.Param("callID"), claims.Role, *req.Candidate); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *CallController) SetStatus(ctx *gin.Context) {
	type StatusRequest struct {
		Status domain.CallStatus `json:"status" binding:"required"`
	}
	var req StatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	claims := claimsFrom(ctx)
	call, err := c.calls.SetStatus(ctx.Request.Context(), ctx.Param("callID"), claims.Role, req.Status)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"call": converter.CallToApi(call)})
}

// Watch streams the whole call record on every change and applies the
// signals the client sends back. Dropping the socket does not end the call.
func (c *CallController) Watch(ctx *gin.Context) {
	const op = "api.http.call.Watch"
	callID := ctx.Param("callID")
	claims := claimsFrom(ctx)
	log := c.log.With("op", op, "call_id", callID, "role", claims.Role)

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", sl.Err(err))
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(msg domain.SignalMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := c.calls.Watch(watchCtx, callID, func(call *domain.CallRecord) {
		if err := send(domain.SignalMessage{Type: domain.SignalTypeSnapshot, Call: call}); err != nil {
			log.Debug("failed to push snapshot", sl.Err(err))
		}
	})
	if err != nil {
		_, message := statusFor(err)
		_ = send(domain.SignalMessage{Type: domain.SignalTypeError, Error: message})
		return
	}
	defer stop()

	log.Info("watcher connected")
	for {
		var msg domain.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Info("watcher disconnected", sl.Err(err))
			return
		}

		resp, err := c.calls.HandleSignal(watchCtx, callID, claims.Role, &msg)
		if err != nil {
			_, message := statusFor(err)
			if err := send(domain.SignalMessage{Type: domain.SignalTypeError, Error: message}); err != nil {
				return
			}
			continue
		}
		if resp != nil {
			if err := send(*resp); err != nil {
				return
			}
		}
	}
}
