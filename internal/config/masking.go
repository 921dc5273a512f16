package config

import "strings"

// maskSecret keeps the first and last four characters of a secret.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) < 8 {
		return "***"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// MaskTelegramToken keeps the bot id visible for diagnostics.
func MaskTelegramToken(token string) string {
	if token == "" {
		return ""
	}
	botID, secret, ok := strings.Cut(token, ":")
	if !ok {
		return maskSecret(token)
	}
	return botID + ":" + maskSecret(secret)
}

// formatValidationError builds a ValidationError that never echoes a secret
// in clear text.
func formatValidationError(field, message string, secret string) error {
	errorMsg := field + ": " + message
	if masked := maskSecret(secret); masked != "" {
		errorMsg += " (value: " + masked + ")"
	}
	return &ValidationError{Field: field, Message: errorMsg}
}

// ValidationError is a validation failure on one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
