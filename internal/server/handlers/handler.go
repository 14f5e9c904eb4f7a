package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/replication"
	"github.com/mamadbah2/avicontrol/internal/service/accounts"
	"github.com/mamadbah2/avicontrol/internal/service/reporting"
	"github.com/mamadbah2/avicontrol/internal/service/sales"
	"github.com/mamadbah2/avicontrol/internal/store"
)

// UserHeader carries the id of the user a request acts for.
const UserHeader = "X-User-ID"

const actorKey = "actor"

// Handler adapts the services to HTTP.
type Handler struct {
	store     *store.Store
	sales     *sales.Service
	accounts  *accounts.Service
	reporting *reporting.Service
	sync      *replication.Engine
	logger    *zap.Logger
}

// New constructs the HTTP handler adapter.
func New(st *store.Store, salesSvc *sales.Service, accountsSvc *accounts.Service, reportingSvc *reporting.Service, engine *replication.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:     st,
		sales:     salesSvc,
		accounts:  accountsSvc,
		reporting: reportingSvc,
		sync:      engine,
		logger:    logger,
	}
}

// Authenticate resolves the acting user from UserHeader.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(UserHeader)
		u, ok := h.store.GetUser(id)
		if id == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		c.Set(actorKey, u)
		c.Next()
	}
}

// RequireAdmin rejects non-admin users.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor(c).Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func actor(c *gin.Context) models.User {
	v, _ := c.Get(actorKey)
	u, _ := v.(models.User)
	return u
}

func statusFor(err error) int {
	var credErr *replication.CredentialError
	switch {
	case errors.As(err, &credErr),
		errors.Is(err, sales.ErrValidation),
		errors.Is(err, accounts.ErrValidation),
		errors.Is(err, replication.ErrConfirmationRequired):
		return http.StatusBadRequest
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, accounts.ErrForbidden),
		errors.Is(err, accounts.ErrSelfDelete),
		errors.Is(err, sales.ErrModeNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, sales.ErrBatchNotFound),
		errors.Is(err, sales.ErrOrderNotFound),
		errors.Is(err, sales.ErrRecordNotFound),
		errors.Is(err, accounts.ErrUserNotFound),
		errors.Is(err, reporting.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, sales.ErrOrderClosed),
		errors.Is(err, sales.ErrOrderOpen),
		errors.Is(err, sales.ErrBatchClosed),
		errors.Is(err, accounts.ErrUsernameTaken),
		errors.Is(err, replication.ErrDisabled):
		return http.StatusConflict
	case errors.Is(err, sales.ErrCrateLimitExceeded),
		errors.Is(err, sales.ErrTareExceedsGross):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// publicUser strips the password before a user leaves the process.
func publicUser(u models.User) models.User {
	u.Password = ""
	return u
}
