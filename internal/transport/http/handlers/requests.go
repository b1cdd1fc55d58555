package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/approval-gate/internal/core/domain"
	"github.com/arklim/approval-gate/internal/usecase"
)

type requestLifecycle interface {
	CreateRequest(ctx context.Context, input usecase.CreateRequestInput) (*usecase.CreateRequestResult, error)
	CreateRequestByPhone(ctx context.Context, phone string, input usecase.CreateRequestInput) (*usecase.CreateRequestResult, error)
	GetStatus(ctx context.Context, requestID string) (*usecase.StatusResult, error)
}

// AuthRequestHandler exposes the operator-facing approval request endpoints.
type AuthRequestHandler struct {
	lifecycle requestLifecycle
}

func NewAuthRequestHandler(lifecycle *usecase.LifecycleService) *AuthRequestHandler {
	return &AuthRequestHandler{lifecycle: lifecycle}
}

// RegisterRoutes binds approval request endpoints.
func (h *AuthRequestHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/request", h.Create)
	r.POST("/request-by-phone", h.CreateByPhone)
	r.GET("/status/:request_id", h.Status)
}

var createRequestErrorCases = []ErrorCase{
	{Err: usecase.ErrClientNotFound, Status: http.StatusNotFound, Message: "client not found"},
	{Err: usecase.ErrPhoneNotFound, Status: http.StatusNotFound, Message: "phone not registered"},
	{Err: usecase.ErrRegistrationIncomplete, Status: http.StatusConflict, Message: "client has not completed registration"},
	{Err: usecase.ErrClientMismatch, Status: http.StatusConflict, Message: "messaging identity does not match client"},
	{Err: usecase.ErrQuotaExceeded, Status: http.StatusTooManyRequests, Message: "pending request limit reached"},
	{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Message: "request store unavailable"},
}

// Create opens a new approval request addressed by client id.
func (h *AuthRequestHandler) Create(c *gin.Context) {
	var req CreateAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	result, err := h.lifecycle.CreateRequest(c.Request.Context(), usecase.CreateRequestInput{
		ClientID:    req.ClientID,
		MessagingID: req.TelegramID,
		Operation:   req.Operation,
		Amount:      req.Amount,
		Metadata:    req.Metadata,
	})
	if err != nil {
		RespondWithMappedError(c, err, createRequestErrorCases, http.StatusInternalServerError, "failed to create request")
		return
	}

	c.JSON(http.StatusCreated, newAuthRequestResponse(result))
}

// CreateByPhone opens a new approval request addressed by phone number.
func (h *AuthRequestHandler) CreateByPhone(c *gin.Context) {
	var req CreateAuthRequestByPhone
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	result, err := h.lifecycle.CreateRequestByPhone(c.Request.Context(), req.Phone, usecase.CreateRequestInput{
		Operation: req.Operation,
		Amount:    req.Amount,
		Metadata:  req.Metadata,
	})
	if err != nil {
		RespondWithMappedError(c, err, createRequestErrorCases, http.StatusInternalServerError, "failed to create request")
		return
	}

	c.JSON(http.StatusCreated, newAuthRequestResponse(result))
}

// Status reports the current state of an approval request.
func (h *AuthRequestHandler) Status(c *gin.Context) {
	requestID := c.Param("request_id")

	result, err := h.lifecycle.GetStatus(c.Request.Context(), requestID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRequestNotFound, Status: http.StatusNotFound, Message: "request not found"},
		}, http.StatusInternalServerError, "failed to load request status")
		return
	}

	response := AuthRequestStatusResponse{
		RequestID: result.Request.RequestID,
		ClientID:  result.Request.ClientID,
		Operation: result.Request.Operation,
		Amount:    result.Request.Amount,
		Status:    string(result.Request.Status),
		CreatedAt: result.Request.CreatedAt,
		DecidedAt: result.Request.DecidedAt,
	}
	if result.Request.Status == domain.RequestStatusPending {
		seconds := int64(result.ExpiresIn.Seconds())
		response.ExpiresInSeconds = &seconds
	}

	c.JSON(http.StatusOK, response)
}

func newAuthRequestResponse(result *usecase.CreateRequestResult) AuthRequestResponse {
	return AuthRequestResponse{
		RequestID: result.Request.RequestID,
		ClientID:  result.Request.ClientID,
		Operation: result.Request.Operation,
		Amount:    result.Request.Amount,
		Status:    string(result.Request.Status),
		CreatedAt: result.Request.CreatedAt,
		ExpiresAt: result.ExpiresAt,
	}
}
