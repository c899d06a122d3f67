// Package api defines the contracts for API requests and responses.
// It decouples the API structure from the internal repository models.
package api

// SubmitApplicationRequest is the expected body for POST /applications.
type SubmitApplicationRequest struct {
	JobID      string `json:"jobId"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	TelegramID string `json:"telegramId,omitempty"`
	CoverNote  string `json:"coverNote,omitempty"`
}

// CreateJobRequest is the expected body for POST /admin/jobs.
type CreateJobRequest struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// UpdateJobRequest is the expected body for PUT /admin/jobs/{jobId}.
type UpdateJobRequest struct {
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ListResponse wraps a page of results plus the total count when known.
type ListResponse struct {
	Items interface{} `json:"items"`
	Count *int64      `json:"count"`
}

// ErrorResponse is the JSON body for all error statuses.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Message string            `json:"message,omitempty"`
}
