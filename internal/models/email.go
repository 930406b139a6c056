package models

// EmailMessage is a single transactional email.
type EmailMessage struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"htmlBody"`
	TextBody  string `json:"textBody,omitempty"`
}

// EmailResult reports the outcome of a send. Failures are reported here, not as errors,
// so callers must check Success.
type EmailResult struct {
	Success        bool   `json:"success"`
	Provider       string `json:"provider"`
	MessageID      string `json:"messageId,omitempty"`
	Error          string `json:"error,omitempty"`
	DeliveryTimeMs int64  `json:"deliveryTimeMs"`
	PreviewURL     string `json:"previewUrl,omitempty"`
}
