package models

// RateLimitExceededResponse is the JSON body returned with HTTP 429 when a
// request exceeds its rate window.
type RateLimitExceededResponse struct {
	Success    bool   `json:"success"` // always false
	Error      string `json:"error"`   // "Too Many Requests"
	RetryAfter int    `json:"retryAfter"`
}

// QuotaExceededResponse is the JSON body returned when a billable operation
// is denied for lack of tokens. Intended to drive an upgrade prompt.
type QuotaExceededResponse struct {
	Success         bool   `json:"success"` // always false
	Error           string `json:"error"`
	TokensRequired  int    `json:"tokensRequired"`
	TokensRemaining int    `json:"tokensRemaining"`
}
