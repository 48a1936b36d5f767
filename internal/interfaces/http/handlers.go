package http

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
	domainwf "github.com/nasmusic-ai/permit-pro/internal/domain/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
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

// ApplicationRequest is the body of create and draft update calls
type ApplicationRequest struct {
	BusinessInfo entity.BusinessInfo `json:"business_info"`
	OwnerInfo    entity.OwnerInfo    `json:"owner_info"`
}

// TransitionRequest asks for one workflow action
type TransitionRequest struct {
	Action    string `json:"action" binding:"required"`
	Notes     string `json:"notes"`
	PaymentID string `json:"payment_id"`
}

// PaymentRequest records an applicant's payment. Amount is a decimal string.
type PaymentRequest struct {
	Amount        string `json:"amount" binding:"required"`
	Method        string `json:"method" binding:"required"`
	TransactionID string `json:"transaction_id"`
}

// ConfirmRequest relays the payment gateway's result
type ConfirmRequest struct {
	Result        string `json:"result" binding:"required"`
	TransactionID string `json:"transaction_id"`
}

// FeeExemptionRequest toggles fee exemption
type FeeExemptionRequest struct {
	FeeExempt *bool `json:"fee_exempt" binding:"required"`
}

// RevokeRequest carries the optional revocation reason
type RevokeRequest struct {
	Reason string `json:"reason"`
}

// PageRequest represents paging query parameters
type PageRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// FeeResponse is the fee schedule with its total
type FeeResponse struct {
	Items []FeeLine `json:"items"`
	Total string    `json:"total"`
}

// FeeLine is one fee schedule entry
type FeeLine struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateApplication handles POST /api/v1/applications
func (h *Handlers) CreateApplication(c *gin.Context) {
	var req ApplicationRequest
	if !h.bind(c, &req) {
		return
	}

	app, err := h.services.Applications.Create(c.Request.Context(), actorFrom(c), req.BusinessInfo, req.OwnerInfo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: app})
}

// ListMyApplications handles GET /api/v1/applications
func (h *Handlers) ListMyApplications(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}
	apps, err := h.services.Applications.ListMine(c.Request.Context(), actorFrom(c), p.Limit, p.Offset)
	h.respond(c, apps, err)
}

// ListQueue handles GET /api/v1/queue?status=submitted,under_review
func (h *Handlers) ListQueue(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}

	var statuses []domainwf.State
	for _, s := range strings.Split(c.Query("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, domainwf.State(s))
		}
	}

	apps, err := h.services.Applications.ListByStatus(c.Request.Context(), actorFrom(c), statuses, p.Limit, p.Offset)
	h.respond(c, apps, err)
}

// GetApplication handles GET /api/v1/applications/:id
func (h *Handlers) GetApplication(c *gin.Context) {
	app, err := h.services.Applications.Get(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.respond(c, app, err)
}

// UpdateDraft handles PUT /api/v1/applications/:id
func (h *Handlers) UpdateDraft(c *gin.Context) {
	var req ApplicationRequest
	if !h.bind(c, &req) {
		return
	}
	app, err := h.services.Applications.UpdateDraft(c.Request.Context(), c.Param("id"), actorFrom(c), req.BusinessInfo, req.OwnerInfo)
	h.respond(c, app, err)
}

// GetHistory handles GET /api/v1/applications/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	rows, err := h.services.Applications.History(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.respond(c, rows, err)
}

// GetPermittedActions handles GET /api/v1/applications/:id/actions
func (h *Handlers) GetPermittedActions(c *gin.Context) {
	actions, err := h.services.Applications.PermittedActions(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.respond(c, actions, err)
}

// Transition handles POST /api/v1/applications/:id/transitions
func (h *Handlers) Transition(c *gin.Context) {
	var req TransitionRequest
	if !h.bind(c, &req) {
		return
	}

	app, err := h.services.Applications.Transition(c.Request.Context(), workflow.Command{
		ApplicationID: c.Param("id"),
		Action:        domainwf.Action(req.Action),
		Actor:         actorFrom(c),
		Notes:         req.Notes,
		PaymentID:     req.PaymentID,
	})
	h.respond(c, app, err)
}

// SetFeeExempt handles PUT /api/v1/applications/:id/fee-exemption
func (h *Handlers) SetFeeExempt(c *gin.Context) {
	var req FeeExemptionRequest
	if !h.bind(c, &req) {
		return
	}
	app, err := h.services.Applications.SetFeeExempt(c.Request.Context(), c.Param("id"), actorFrom(c), *req.FeeExempt)
	h.respond(c, app, err)
}

// ListApplicationPayments handles GET /api/v1/applications/:id/payments
func (h *Handlers) ListApplicationPayments(c *gin.Context) {
	payments, err := h.services.Payments.ListForApplication(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.respond(c, payments, err)
}

// RecordPayment handles POST /api/v1/applications/:id/payments
func (h *Handlers) RecordPayment(c *gin.Context) {
	var req PaymentRequest
	if !h.bind(c, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.fail(c, domainwf.ErrValidationFailed)
		return
	}

	p, err := h.services.Payments.RecordPayment(c.Request.Context(), c.Param("id"), actorFrom(c), workflow.PaymentInput{
		Amount:        amount,
		Method:        req.Method,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: p})
}

// GetApplicationPermit handles GET /api/v1/applications/:id/permit
func (h *Handlers) GetApplicationPermit(c *gin.Context) {
	p, err := h.services.Permits.GetByApplication(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.respond(c, p, err)
}

// IssuePermit handles POST /api/v1/applications/:id/permit
func (h *Handlers) IssuePermit(c *gin.Context) {
	p, err := h.services.Permits.IssuePermit(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.respond(c, p, err)
}

// GetStats handles GET /api/v1/dashboard/stats
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.services.Applications.Stats(c.Request.Context(), actorFrom(c))
	h.respond(c, stats, err)
}

// GetFees handles GET /api/v1/fees
func (h *Handlers) GetFees(c *gin.Context) {
	fees := h.services.Payments.Fees()
	resp := FeeResponse{
		Items: make([]FeeLine, 0, len(fees.Items)),
		Total: fees.Total().StringFixed(2),
	}
	for _, item := range fees.Items {
		resp.Items = append(resp.Items, FeeLine{Name: item.Name, Amount: item.Amount.StringFixed(2)})
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// ListPayments handles GET /api/v1/payments?status=completed
func (h *Handlers) ListPayments(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}
	payments, err := h.services.Payments.ListByStatus(c.Request.Context(), actorFrom(c), c.DefaultQuery("status", entity.PaymentStatusCompleted), p.Limit, p.Offset)
	h.respond(c, payments, err)
}

// ExportLedger handles GET /api/v1/payments/ledger.xlsx?from=2026-01-01&to=2026-02-01
func (h *Handlers) ExportLedger(c *gin.Context) {
	from, errFrom := parseDay(c.Query("from"))
	to, errTo := parseDay(c.Query("to"))
	if errFrom != nil || errTo != nil {
		h.fail(c, domainwf.ErrValidationFailed)
		return
	}

	var buf bytes.Buffer
	if err := h.services.Payments.ExportLedger(c.Request.Context(), actorFrom(c), from, to, &buf); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="payment-ledger-`+from.Format("20060102")+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ConfirmPayment handles POST /api/v1/payments/:id/confirm
func (h *Handlers) ConfirmPayment(c *gin.Context) {
	var req ConfirmRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := h.services.Payments.ConfirmPayment(c.Request.Context(), c.Param("id"), actorFrom(c), req.Result, req.TransactionID)
	h.respond(c, p, err)
}

// VerifyPayment handles POST /api/v1/payments/:id/verify
func (h *Handlers) VerifyPayment(c *gin.Context) {
	p, err := h.services.Payments.VerifyPayment(c.Request.Context(), c.Param("id"), actorFrom(c))
	h.respond(c, p, err)
}

// GetPermitByNumber handles GET /api/v1/permits/:number
func (h *Handlers) GetPermitByNumber(c *gin.Context) {
	p, err := h.services.Permits.GetByNumber(c.Request.Context(), c.Param("number"))
	h.respond(c, p, err)
}

// RevokePermit handles POST /api/v1/permits/:number/revoke
func (h *Handlers) RevokePermit(c *gin.Context) {
	var req RevokeRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}

	p, err := h.services.Permits.GetByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err = h.services.Permits.Revoke(c.Request.Context(), p.ID, actorFrom(c), req.Reason)
	h.respond(c, p, err)
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}
	items, err := h.services.Notifications.List(c.Request.Context(), actorFrom(c), p.Limit, p.Offset)
	h.respond(c, items, err)
}

// UnreadCount handles GET /api/v1/notifications/unread-count
func (h *Handlers) UnreadCount(c *gin.Context) {
	n, err := h.services.Notifications.UnreadCount(c.Request.Context(), actorFrom(c))
	h.respond(c, gin.H{"unread": n}, err)
}

// MarkRead handles POST /api/v1/notifications/:id/read
func (h *Handlers) MarkRead(c *gin.Context) {
	err := h.services.Notifications.MarkRead(c.Request.Context(), actorFrom(c), c.Param("id"))
	h.respond(c, gin.H{"id": c.Param("id")}, err)
}

// MarkAllRead handles POST /api/v1/notifications/read-all
func (h *Handlers) MarkAllRead(c *gin.Context) {
	n, err := h.services.Notifications.MarkAllRead(c.Request.Context(), actorFrom(c))
	h.respond(c, gin.H{"marked": n}, err)
}

func (h *Handlers) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return false
	}
	return true
}

func (h *Handlers) page(c *gin.Context) (PageRequest, bool) {
	var p PageRequest
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return p, false
	}
	return p, true
}

func (h *Handlers) respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// fail maps the error taxonomy onto status codes. Internal details are logged, never returned.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		message = "internal error"
	}

	c.JSON(status, Response{Success: false, Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domainwf.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domainwf.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseDay accepts a date or an RFC 3339 timestamp
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
