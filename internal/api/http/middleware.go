package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/developer387/doorbell-app-sub000/internal/metrics"
	"github.com/developer387/doorbell-app-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

const claimsKey = "call_claims"

// Auth validates the bearer token. Browsers can't set headers on a
// websocket handshake, so a token query parameter is accepted too.
func Auth(tokens service.TokenParser) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw := ctx.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			raw = strings.TrimSpace(raw[len("Bearer "):])
		} else {
			raw = ctx.Query("token")
		}
		if raw == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ctx.Set(claimsKey, claims)
		ctx.Next()
	}
}

// RequireCall admits tokens scoped to the call in the path.
func RequireCall() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := claimsFrom(ctx)
		if claims == nil || claims.CallID == "" || claims.CallID != ctx.Param("callID") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token does not match call"})
			return
		}
		ctx.Next()
	}
}

func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := claimsFrom(ctx)
		if claims == nil || claims.Role != role {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role may not perform this action"})
			return
		}
		ctx.Next()
	}
}

// RequireProperty admits owner tokens that manage the property in the path.
func RequireProperty() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := claimsFrom(ctx)
		if claims == nil || claims.CallID != "" || claims.Role != domain.RoleOwner ||
			claims.PropertyID != ctx.Param("propertyID") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token does not match property"})
			return
		}
		ctx.Next()
	}
}

func claimsFrom(ctx *gin.Context) *service.CallClaims {
	value, ok := ctx.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*service.CallClaims)
	return claims
}

// Metrics records request counts and latency by route template.
func Metrics() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.URL.Path == "/metrics" {
			ctx.Next()
			return
		}

		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := ctx.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
