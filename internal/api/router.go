package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"laundryonline/config"
	"laundryonline/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(deps Deps, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(deps)

	// Initialize middleware
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// The machine list is cached per snapshot, so a write is visible on the
	// next request.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 10*time.Minute)
	caching := mw.Cache(cacheStore, ttl, func() string {
		return strconv.FormatUint(deps.Sync.State().Seq, 10)
	})
	requireAuth := mw.RequireAuth(deps.Auth)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/auth/signup", handler.SignUp)
		api.POST("/auth/signin", handler.SignIn)
		api.POST("/auth/password-reset", handler.SendPasswordReset)
		api.POST("/auth/password-reset/confirm", handler.ConfirmPasswordReset)

		api.GET("/machines", caching, handler.ListMachines)
		api.GET("/machines/:id", handler.GetMachine)
		api.GET("/machines/:id/runs", handler.GetRuns)
		api.GET("/sync/state", handler.GetSyncState)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		// The token travels in the query because browsers cannot set
		// headers on WebSocket upgrades.
		api.GET("/ws", handler.ServeWS)
	}

	authed := api.Group("")
	authed.Use(requireAuth)
	{
		authed.POST("/auth/signout", handler.SignOut)
		authed.GET("/auth/me", handler.Me)
		authed.PATCH("/auth/me", handler.UpdateProfile)

		authed.GET("/machines/:id/subscription", handler.GetMachineSubscription)
		authed.PUT("/machines/:id/subscription", handler.PutMachineSubscription)
		authed.DELETE("/machines/:id/subscription", handler.DeleteMachineSubscription)
		authed.GET("/subscriptions", handler.ListSubscriptions)

		authed.PUT("/push/subscription", handler.PutPushSubscription)
		authed.DELETE("/push/subscription", handler.DeletePushSubscription)

		authed.GET("/notifications", handler.ListNotifications)
		authed.POST("/notifications/:id/read", handler.MarkNotificationRead)
		authed.GET("/notifications/permission", handler.GetPermission)
		authed.PUT("/notifications/permission", handler.PutPermission)
		authed.GET("/messaging/token", handler.GetMessagingToken)

		authed.POST("/admin/machines", handler.CreateMachine)
		authed.PATCH("/admin/machines/:id/status", handler.UpdateMachineStatus)
		authed.DELETE("/admin/machines/:id", handler.DeleteMachine)
	}

	return r
}
