package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sensaygw/internal/auth"
	"sensaygw/internal/gateway"
	"sensaygw/internal/models"
	"sensaygw/internal/sensay"
	"sensaygw/internal/tasks"
)

// Handler wires HTTP routes to the chat gateway and the task store.
type Handler struct {
	gateway *gateway.Gateway
	tasks   *tasks.Store
	auth    *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(gw *gateway.Gateway, store *tasks.Store, authService *auth.Service) *Handler {
	return &Handler{
		gateway: gw,
		tasks:   store,
		auth:    authService,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	api.POST("/session", h.createSession)

	secured := api.Group("", h.auth.Middleware())
	secured.DELETE("/session", h.deleteSession)
	secured.POST("/chat", h.chat)
	secured.GET("/tasks", h.listTasks)
	secured.POST("/tasks", h.createTask)
	secured.PATCH("/tasks/:id", h.updateTask)
	secured.DELETE("/tasks/:id", h.deleteTask)
}

type chatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.gateway.Handle(c.Request.Context(), userID, req.Messages)
	if err != nil {
		var upstreamErr *sensay.UpstreamError
		switch {
		case errors.Is(err, gateway.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, gateway.ErrMissingIdentity):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.As(err, &upstreamErr):
			body := gin.H{
				"error":      "replica API unavailable",
				"apiDetails": gin.H{"attempts": upstreamErr.Attempts},
			}
			if res != nil {
				body["tasks"] = taskList(res.Tasks)
			}
			c.JSON(http.StatusInternalServerError, body)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reply": res.Reply,
		"tasks": taskList(res.Tasks),
	})
}

func (h *Handler) listTasks(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	list, err := h.tasks.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": taskList(list)})
}

type createTaskRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) createTask(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	task, err := h.tasks.Insert(c.Request.Context(), userID, req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}
	c.JSON(http.StatusCreated, task)
}

type updateTaskRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

func (h *Handler) updateTask(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || taskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Completed == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.tasks.SetCompleted(c.Request.Context(), userID, taskID, *req.Completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update task"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteTask(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || taskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), userID, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete task"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Session issuing stands in for the external auth provider in deployments
// that run the gateway alone.
type createSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	token, err := h.auth.IssueToken(c.Request.Context(), req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"auth_token": token,
		"expires_in": int(h.auth.TokenTTL().Seconds()),
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	token := ""
	if len(authHeader) > 7 {
		token = authHeader[7:]
	}
	if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke token failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user identity required"})
		return "", false
	}
	return userID, true
}

// taskList keeps empty task arrays as [] rather than null in JSON bodies.
func taskList(list []models.Task) []models.Task {
	if list == nil {
		return []models.Task{}
	}
	return list
}
