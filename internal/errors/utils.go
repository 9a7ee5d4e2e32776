package errors

import "os"

// sanitizeError hides internal error detail from clients in production
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return ""
	}

	return err.Error()
}
