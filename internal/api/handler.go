package api

import (
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"laundryonline/internal/admin"
	"laundryonline/internal/apperr"
	"laundryonline/internal/auth"
	"laundryonline/internal/hub"
	"laundryonline/internal/machinesync"
	"laundryonline/internal/messaging"
	"laundryonline/internal/mw"
	"laundryonline/internal/notification"
	"laundryonline/internal/store"
)

// Deps are the services the handlers call. Messaging may be nil when no
// relay is configured.
type Deps struct {
	Store      store.Store
	Sync       *machinesync.Synchronizer
	Auth       *auth.Service
	Admin      *admin.Panel
	Dispatcher *notification.Dispatcher
	Hub        *hub.Hub
	Messaging  *messaging.Listener
	WebPush    *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// httpStatus maps an error kind onto a response code.
func httpStatus(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuthFailure:
		return http.StatusUnauthorized
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnsupportedEnvironment:
		return http.StatusNotImplemented
	case apperr.KindNetworkFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "kind"}. Unclassified errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	code := httpStatus(kind)
	msg := apperr.Message(err)
	if code == http.StatusInternalServerError {
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(code, gin.H{"error": msg, "kind": kind})
}

// badRequest reports a request body or query that failed to bind.
func badRequest(c *gin.Context, err error) {
	respondError(c, apperr.InvalidInput("api.bind", err.Error()))
}

// identity returns the caller set by mw.RequireAuth.
func identity(c *gin.Context) auth.Identity {
	ident, _ := mw.IdentityFromContext(c)
	return ident
}
