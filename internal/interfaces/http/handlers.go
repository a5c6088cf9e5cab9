package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/models"
	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine      *workflow.Engine
	definitions *workflow.DefinitionService
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine *workflow.Engine, definitions *workflow.DefinitionService, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine:      engine,
		definitions: definitions,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var input workflow.DefinitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	wf, err := h.definitions.Create(c.GetString(ctxCompanyID), &input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: wf})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	workflows, err := h.definitions.List(c.GetString(ctxCompanyID))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: workflows})
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	wf, err := h.definitions.Get(c.Param("id"), c.GetString(ctxCompanyID))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// DeactivateWorkflow handles POST /api/v1/workflows/:id/deactivate
func (h *Handlers) DeactivateWorkflow(c *gin.Context) {
	if err := h.definitions.Deactivate(c.Param("id"), c.GetString(ctxCompanyID)); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// OpenRequestInput is the document-submission payload
type OpenRequestInput struct {
	DocumentType models.DocumentType `json:"document_type" binding:"required"`
	DocumentID   string              `json:"document_id" binding:"required"`
}

// OpenRequest handles POST /api/v1/approval-requests
func (h *Handlers) OpenRequest(c *gin.Context) {
	var input OpenRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	req, err := h.engine.OpenForDocument(
		c.Request.Context(),
		c.GetString(ctxCompanyID),
		c.GetString(ctxActorID),
		models.DocumentRef{Type: input.DocumentType, ID: input.DocumentID},
	)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if req == nil {
		// No workflow applies: the document proceeds without approval.
		c.JSON(http.StatusOK, Response{
			Success: true,
			Data:    gin.H{"approval_required": false},
		})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// GetRequest handles GET /api/v1/approval-requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, actions, err := h.engine.GetRequest(c.GetString(ctxCompanyID), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"request": req,
			"actions": actions,
		},
	})
}

// ListRequests handles GET /api/v1/approval-requests
func (h *Handlers) ListRequests(c *gin.Context) {
	status := models.RequestStatus(c.Query("status"))
	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	requests, err := h.engine.ListRequests(c.GetString(ctxCompanyID), status, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// ListPendingRequests handles GET /api/v1/pending-approvals
func (h *Handlers) ListPendingRequests(c *gin.Context) {
	requests, err := h.engine.ListPendingFor(c.GetString(ctxCompanyID), c.GetString(ctxActorID))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// ActionInput is an approver's decision payload
type ActionInput struct {
	Decision models.Decision `json:"decision" binding:"required"`
	Comment  string          `json:"comment"`
}

// SubmitAction handles POST /api/v1/approval-requests/:id/actions
func (h *Handlers) SubmitAction(c *gin.Context) {
	var input ActionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	req, err := h.engine.Act(
		c.Request.Context(),
		c.GetString(ctxCompanyID),
		c.Param("id"),
		c.GetString(ctxActorID),
		input.Decision,
		input.Comment,
	)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// CancelRequest handles POST /api/v1/approval-requests/:id/cancel
func (h *Handlers) CancelRequest(c *gin.Context) {
	req, err := h.engine.Cancel(
		c.Request.Context(),
		c.GetString(ctxCompanyID),
		c.Param("id"),
		c.GetString(ctxActorID),
	)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// respondError maps domain errors to HTTP statuses
func (h *Handlers) respondError(c *gin.Context, err error) {
	var dup *workflow.DuplicateRequestError
	if errors.As(err, &dup) {
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Data:    gin.H{"existing_request_id": dup.ExistingID},
			Error:   err.Error(),
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotEligibleApprover):
		status = http.StatusForbidden
	case errors.Is(err, workflow.ErrRequestNotFound), errors.Is(err, workflow.ErrWorkflowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrDuplicateRequest),
		errors.Is(err, workflow.ErrRequestNotActionable),
		errors.Is(err, workflow.ErrDuplicateAction):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, Response{Success: false, Error: "internal server error"})
		return
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func parseIntQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
