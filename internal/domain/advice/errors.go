package advice

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrAdvisorDisabled is returned when no AI provider is configured.
var ErrAdvisorDisabled = errors.New("ai advisor is not configured")
