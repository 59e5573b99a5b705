package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Test sessions ─────────────────────────────────────────────────
	ErrTestNotFound       ErrCode = "TEST_NOT_FOUND"
	ErrTestNotAvailable   ErrCode = "TEST_NOT_AVAILABLE"
	ErrSessionNotFound    ErrCode = "SESSION_NOT_FOUND"
	ErrSessionClosed      ErrCode = "SESSION_CLOSED"
	ErrSessionNotActive   ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionExpired     ErrCode = "SESSION_EXPIRED"
	ErrQuestionOutOfRange ErrCode = "QUESTION_OUT_OF_RANGE"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrSessionCapacity    ErrCode = "SESSION_CAPACITY_REACHED"

	// ─── Certificates ──────────────────────────────────────────────────
	ErrAttemptNotFound           ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptNotPassed          ErrCode = "ATTEMPT_NOT_PASSED"
	ErrCertificateAlreadyIssued  ErrCode = "CERTIFICATE_ALREADY_ISSUED"
	ErrCertificateNotFound       ErrCode = "CERTIFICATE_NOT_FOUND"
	ErrCertificateRevoked        ErrCode = "CERTIFICATE_REVOKED"
	ErrCertificateExpired        ErrCode = "CERTIFICATE_EXPIRED"
	ErrCertificateAlreadyRevoked ErrCode = "CERTIFICATE_ALREADY_REVOKED"
	ErrCertificateFileMissing    ErrCode = "CERTIFICATE_FILE_MISSING"
	ErrInvalidVerificationCode   ErrCode = "INVALID_VERIFICATION_CODE"
	ErrEmailFailed               ErrCode = "EMAIL_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrInvalidCredentials: "Invalid email or password.",
	ErrTokenRequired:      "An authentication token is required.",
	ErrTokenInvalid:       "The authentication token is invalid.",
	ErrTokenExpired:       "The authentication token has expired.",

	ErrForbidden:       "You do not have permission to access this resource.",
	ErrAdminAccessOnly: "This resource is restricted to administrators.",

	ErrValidation:     "The request contains invalid fields.",
	ErrInvalidID:      "The provided ID is not valid.",
	ErrInvalidPayload: "The request body could not be parsed.",

	ErrNotFound: "The requested resource was not found.",
	ErrConflict: "The resource is in a conflicting state.",

	ErrTestNotFound:       "Test not found.",
	ErrTestNotAvailable:   "This test is not available for taking.",
	ErrSessionNotFound:    "Test session not found.",
	ErrSessionClosed:      "This test session has already been submitted.",
	ErrSessionNotActive:   "This test session is paused. Resume it to continue.",
	ErrSessionExpired:     "The time limit for this test session has passed.",
	ErrQuestionOutOfRange: "The question index is out of range.",
	ErrUnknownQuestion:    "The question does not belong to this test.",
	ErrSessionCapacity:    "No capacity for another test session. Please try again later.",

	ErrAttemptNotFound:           "Test attempt not found.",
	ErrAttemptNotPassed:          "The attempt did not reach the passing score.",
	ErrCertificateAlreadyIssued:  "A certificate has already been issued for this attempt.",
	ErrCertificateNotFound:       "Certificate not found.",
	ErrCertificateRevoked:        "This certificate has been revoked.",
	ErrCertificateExpired:        "This certificate has expired.",
	ErrCertificateAlreadyRevoked: "This certificate is already revoked.",
	ErrCertificateFileMissing:    "The certificate file is not available.",
	ErrInvalidVerificationCode:   "Invalid verification code format.",
	ErrEmailFailed:               "The certificate email could not be sent.",

	ErrRateLimitExceeded: "Too many requests. Please try again later.",

	ErrInternal: "An internal server error occurred.",
}

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "An unexpected error occurred."
}
