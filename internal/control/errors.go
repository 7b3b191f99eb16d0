package control

import (
	"net/http"
	"strings"
)

const errorCodeVersion = "v1"

const (
	// Auth domain
	codeAuthMissingBearerToken = errorCodeVersion + "/auth/missing_bearer_token"
	codeAuthInvalidBearerToken = errorCodeVersion + "/auth/invalid_bearer_token"
	codeAuthRemoteAddress      = errorCodeVersion + "/auth/remote_address_denied"
	codeAuthUnauthorized       = errorCodeVersion + "/auth/unauthorized"
	codeAuthForbidden          = errorCodeVersion + "/auth/forbidden"

	// Validation domain
	codeValidationBadRequest   = errorCodeVersion + "/validation/bad_request"
	codeValidationMalformed    = errorCodeVersion + "/validation/malformed_json"
	codeValidationMissingField = errorCodeVersion + "/validation/missing_required_field"
	codeValidationInvalidValue = errorCodeVersion + "/validation/invalid_value"

	// Job domain
	codeJobNotFound       = errorCodeVersion + "/job/not_found"
	codeJobAlreadyStarted = errorCodeVersion + "/job/already_started"
	codeJobAlreadyStopped = errorCodeVersion + "/job/already_stopped"
	codeJobFailed         = errorCodeVersion + "/job/failed"
	codePermissionDenied  = errorCodeVersion + "/job/permission_denied"

	// Event domain
	codeEventFailed = errorCodeVersion + "/event/failed"

	// Generic fallbacks
	codeInternalError = errorCodeVersion + "/internal/error"
	codeServerError   = errorCodeVersion + "/internal/server_error"
)

func errorCode(status int, message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized != "" {
		if code := errorCodeFromMessage(normalized); code != "" {
			return code
		}
	}
	return errorCodeByStatus(status)
}

func errorCodeFromMessage(normalized string) string {
	switch {
	case strings.Contains(normalized, "missing bearer token"):
		return codeAuthMissingBearerToken
	case strings.Contains(normalized, "invalid bearer token"):
		return codeAuthInvalidBearerToken
	case strings.Contains(normalized, "remote address not allowed"):
		return codeAuthRemoteAddress
	case strings.Contains(normalized, "no such job class or instance"):
		return codeJobNotFound
	case strings.Contains(normalized, "already has goal start"):
		return codeJobAlreadyStarted
	case strings.Contains(normalized, "already has goal stop"):
		return codeJobAlreadyStopped
	case strings.Contains(normalized, "does not own this job"):
		return codePermissionDenied
	case strings.Contains(normalized, "failed in"):
		return codeJobFailed
	case strings.Contains(normalized, "event") && strings.Contains(normalized, "failed"):
		return codeEventFailed
	case strings.Contains(normalized, "is required") || strings.Contains(normalized, "must be set"):
		return codeValidationMissingField
	case strings.Contains(normalized, "invalid request body") || strings.Contains(normalized, "invalid json"):
		return codeValidationMalformed
	case strings.Contains(normalized, "invalid"):
		return codeValidationInvalidValue
	}
	return ""
}

func errorCodeByStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return codeAuthUnauthorized
	case http.StatusForbidden:
		return codeAuthForbidden
	case http.StatusBadRequest:
		return codeValidationBadRequest
	case http.StatusNotFound:
		return codeJobNotFound
	case http.StatusInternalServerError:
		return codeServerError
	default:
		if status >= http.StatusInternalServerError {
			return codeServerError
		}
	}
	return codeInternalError
}
