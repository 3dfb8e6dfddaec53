package dto

// TriggerBroadcastResponse is returned after a coordinator pass completes
type TriggerBroadcastResponse struct {
	Message   string `json:"message"`
	UUID      string `json:"uuid"`
	Channel   string `json:"channel"`
	Status    string `json:"status"`
	Scheduled int    `json:"scheduled"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// ListRecipientsRequest carries pagination and status filtering for the
// recipient listing endpoint
type ListRecipientsRequest struct {
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
	Status   string `query:"status" validate:"omitempty,oneof=pending sent delivered opened clicked bounced failed"`
}

// RecipientDTO is the outward shape of one campaign recipient
type RecipientDTO struct {
	UUID          string `json:"uuid"`
	ContactID     uint   `json:"contact_id"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Status        string `json:"status"`
	SentAt        string `json:"sent_at,omitempty"`
	FailedAt      string `json:"failed_at,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// ListRecipientsResponse is the paginated recipient listing
type ListRecipientsResponse struct {
	Items    []RecipientDTO `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}
