package domain

// GuardResult is the outcome of an admission check (rate limiter, circuit
// breaker). Reason and Guard are set only when the request is rejected.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"`
}
