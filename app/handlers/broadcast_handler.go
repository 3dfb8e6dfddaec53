// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/calyxsuite/outreach/app/dto"
	businessflow "github.com/calyxsuite/outreach/business_flow"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/repository"
	"github.com/calyxsuite/outreach/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// BroadcastHandlerInterface defines the contract for campaign broadcast handlers
type BroadcastHandlerInterface interface {
	TriggerBroadcast(c fiber.Ctx) error
	ListRecipients(c fiber.Ctx) error
}

// BroadcastHandler handles campaign broadcast HTTP requests
type BroadcastHandler struct {
	campaignRepo  repository.CampaignRepository
	recipientRepo repository.RecipientRepository
	emailFlow     businessflow.BroadcastFlow
	smsFlow       businessflow.BroadcastFlow
	validator     *validator.Validate
}

// NewBroadcastHandler creates a new broadcast handler
func NewBroadcastHandler(
	campaignRepo repository.CampaignRepository,
	recipientRepo repository.RecipientRepository,
	emailFlow businessflow.BroadcastFlow,
	smsFlow businessflow.BroadcastFlow,
) *BroadcastHandler {
	return &BroadcastHandler{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		emailFlow:     emailFlow,
		smsFlow:       smsFlow,
		validator:     validator.New(),
	}
}

func (h *BroadcastHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *BroadcastHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// TriggerBroadcast runs the broadcast coordinator for one campaign
func (h *BroadcastHandler) TriggerBroadcast(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID+"/broadcast")

	campaign, err := h.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		log.Println("Campaign lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to lookup campaign", "CAMPAIGN_LOOKUP_FAILED", nil)
	}
	if campaign == nil {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	}

	var flow businessflow.BroadcastFlow
	switch campaign.Channel {
	case models.CampaignChannelEmail:
		flow = h.emailFlow
	case models.CampaignChannelSMS:
		flow = h.smsFlow
	default:
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Campaign channel is not broadcastable", "INVALID_CHANNEL", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))

	summary, err := flow.Broadcast(ctx, campaign.ID, metadata)
	if err != nil {
		if businessflow.IsCampaignAlreadyRunning(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign broadcast is already running", "BROADCAST_IN_PROGRESS", nil)
		}

		log.Println("Campaign broadcast failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign broadcast failed", "BROADCAST_FAILED", nil)
	}
	if summary == nil {
		// Nothing to do is not a failure: missing owner or channel mismatch
		return h.SuccessResponse(c, fiber.StatusOK, "Nothing to broadcast", nil)
	}

	// Status after a completed pass is always sent
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign broadcast completed", dto.TriggerBroadcastResponse{
		Message:   "All recipients scheduled for delivery",
		UUID:      campaign.UUID.String(),
		Channel:   summary.Channel,
		Status:    models.CampaignStatusSent.String(),
		Scheduled: summary.Scheduled,
		Skipped:   summary.Skipped,
		Failed:    summary.Failed,
	})
}

// ListRecipients returns the paginated recipient statuses of one campaign
func (h *BroadcastHandler) ListRecipients(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.ListRecipientsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	ctx := h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID+"/recipients")

	campaign, err := h.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		log.Println("Campaign lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to lookup campaign", "CAMPAIGN_LOOKUP_FAILED", nil)
	}
	if campaign == nil {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	}

	filter := models.RecipientFilter{CampaignID: &campaign.ID}
	if req.Status != "" {
		status := models.RecipientStatus(req.Status)
		filter.Status = &status
	}

	total, err := h.recipientRepo.Count(ctx, filter)
	if err != nil {
		log.Println("Recipient count failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list recipients", "RECIPIENT_LIST_FAILED", nil)
	}

	recipients, err := h.recipientRepo.ByFilter(ctx, filter, "id ASC", req.PageSize, (req.Page-1)*req.PageSize)
	if err != nil {
		log.Println("Recipient listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list recipients", "RECIPIENT_LIST_FAILED", nil)
	}

	items := make([]dto.RecipientDTO, 0, len(recipients))
	for _, r := range recipients {
		items = append(items, toRecipientDTO(r))
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Recipients listed successfully", dto.ListRecipientsResponse{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

func toRecipientDTO(r *models.CampaignRecipient) dto.RecipientDTO {
	item := dto.RecipientDTO{
		UUID:      r.UUID.String(),
		ContactID: r.ContactID,
		Email:     r.Email,
		Phone:     r.Phone,
		Status:    r.Status.String(),
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
	if r.SentAt != nil {
		item.SentAt = r.SentAt.Format(time.RFC3339)
	}
	if r.FailedAt != nil {
		item.FailedAt = r.FailedAt.Format(time.RFC3339)
	}
	if r.FailureReason != nil {
		item.FailureReason = *r.FailureReason
	}
	return item
}

// createRequestContext mirrors other handlers for request-scoped values
func (h *BroadcastHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx := context.WithValue(context.Background(), utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	return ctx
}
