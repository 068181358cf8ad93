package middleware

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidateReportID checks that id is a UUID as issued by the repositories.
func ValidateReportID(id string) error {
	if id == "" {
		return fmt.Errorf("report id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid report id format")
	}
	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidatePage validates page number
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}
