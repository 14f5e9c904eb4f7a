package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/avicontrol/internal/domain/models"
	"github.com/mamadbah2/avicontrol/internal/service/accounts"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks credentials and returns the user to act as.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}
	u, err := h.accounts.Login(req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, publicUser(u))
}

// Me returns the acting user.
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, publicUser(actor(c)))
}

// ListUsers returns the users visible to the actor.
func (h *Handler) ListUsers(c *gin.Context) {
	users := h.accounts.ListUsers(actor(c))
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		out = append(out, publicUser(u))
	}
	c.JSON(http.StatusOK, out)
}

// CreateUser adds an account.
func (h *Handler) CreateUser(c *gin.Context) {
	var in accounts.UserInput
	if !h.bind(c, &in) {
		return
	}
	u, err := h.accounts.CreateUser(actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, publicUser(u))
}

// UpdateUser edits an account.
func (h *Handler) UpdateUser(c *gin.Context) {
	var in accounts.UserInput
	if !h.bind(c, &in) {
		return
	}
	u, err := h.accounts.UpdateUser(actor(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, publicUser(u))
}

// DeleteUser removes an account.
func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.accounts.DeleteUser(actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
