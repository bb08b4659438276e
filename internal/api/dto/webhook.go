package dto

// WebhookAckResponse is the body returned to the payment provider. The
// provider only cares about the 200; the body is for humans reading logs.
type WebhookAckResponse struct {
	Received bool `json:"received"`
}

// ReplayResult summarizes one replay pass over failed webhook events.
type ReplayResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
