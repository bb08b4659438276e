package dto

// SweepItemError records one subscription the sweep could not process. The
// batch keeps going; errors are collected, not fatal.
type SweepItemError struct {
	SubscriptionID string `json:"subscription_id"`
	ShopID         string `json:"shop_id"`
	Error          string `json:"error"`
}

// SweepResult summarizes one pass of the scheduled status sweep.
type SweepResult struct {
	Processed int `json:"processed"`
	Expired   int `json:"expired"`
	PastDue   int `json:"past_due"`
	Suspended int `json:"suspended"`

	// Notification outcomes from the dunning evaluation folded into the
	// same pass.
	WarningsSent      int `json:"warnings_sent"`
	RemindersSent     int `json:"reminders_sent"`
	SuspensionNotices int `json:"suspension_notices"`

	Errors []SweepItemError `json:"errors,omitempty"`
}

// DunningResult summarizes one standalone dunning pass.
type DunningResult struct {
	Evaluated         int `json:"evaluated"`
	WarningsSent      int `json:"warnings_sent"`
	RemindersSent     int `json:"reminders_sent"`
	SuspensionNotices int `json:"suspension_notices"`

	Errors []SweepItemError `json:"errors,omitempty"`
}

// PurgeResult reports how many processed webhook events the retention purge
// removed.
type PurgeResult struct {
	Purged int64 `json:"purged"`
}
