package models

// OutboundMessageRequest is a text notification pushed to a WhatsApp recipient.
type OutboundMessageRequest struct {
	To         string `json:"to"`
	Message    string `json:"message"`
	PreviewURL bool   `json:"preview_url"`
}

// NotificationTemplate is the title/body pair rendered for a sale event.
type NotificationTemplate struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
