package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/usecase"
)

// ClientHandler exposes client registry endpoints.
type ClientHandler struct {
	registry *usecase.RegistryService
}

func NewClientHandler(registry *usecase.RegistryService) *ClientHandler {
	return &ClientHandler{registry: registry}
}

// RegisterRoutes binds client registry endpoints.
func (h *ClientHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.Register)
	r.GET("/by-phone/:phone", h.GetByPhone)
	r.GET("/:client_id", h.Get)
	r.DELETE("/:client_id", h.Deactivate)
}

// Register creates a client identity known by phone.
func (h *ClientHandler) Register(c *gin.Context) {
	var req RegisterClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	client, err := h.registry.RegisterClient(c.Request.Context(), req.ClientID, strings.TrimSpace(req.Phone), domain.ClientProfile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIdentityConflict, Status: http.StatusConflict, Message: "client id or phone already registered"},
		}, http.StatusInternalServerError, "failed to register client")
		return
	}

	c.JSON(http.StatusCreated, RegisterClientResponse{
		Client:  NewClientSummary(client),
		Message: "client registered; awaiting messenger link",
	})
}

// Get returns the client identity by its stable external key.
func (h *ClientHandler) Get(c *gin.Context) {
	clientID := c.Param("client_id")

	client, err := h.registry.GetClient(c.Request.Context(), clientID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrClientNotFound, Status: http.StatusNotFound, Message: "client not found"},
		}, http.StatusInternalServerError, "failed to load client")
		return
	}

	c.JSON(http.StatusOK, NewClientSummary(client))
}

// Deactivate retires a client identity while keeping its audit trail.
func (h *ClientHandler) Deactivate(c *gin.Context) {
	clientID := c.Param("client_id")

	if err := h.registry.DeactivateClient(c.Request.Context(), clientID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrClientNotFound, Status: http.StatusNotFound, Message: "client not found"},
		}, http.StatusInternalServerError, "failed to deactivate client")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "client deactivated"})
}

// GetByPhone resolves the client identity by any spelling of its phone.
func (h *ClientHandler) GetByPhone(c *gin.Context) {
	phone := c.Param("phone")

	client, err := h.registry.ResolveByPhone(c.Request.Context(), phone)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrClientNotFound, Status: http.StatusNotFound, Message: "client not found"},
		}, http.StatusBadRequest, "invalid phone")
		return
	}

	c.JSON(http.StatusOK, NewClientSummary(client))
}
