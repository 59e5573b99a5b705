package service

import "errors"

// Sentinel errors returned by services. Handlers map them to status codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")

	ErrTestNotFound      = errors.New("test not found")
	ErrTestUnavailable   = errors.New("test is not available")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionClosed     = errors.New("session already submitted or expired")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrSessionExpired    = errors.New("session time limit has passed")
	ErrSessionNotExpired = errors.New("session is still within its time limit")
	ErrOutOfRange        = errors.New("question index out of range")
	ErrUnknownQuestion   = errors.New("question is not part of this session")
	ErrSessionCapacity   = errors.New("no room for another live session")

	ErrAttemptNotFound        = errors.New("test attempt not found")
	ErrNotPassed              = errors.New("test attempt did not pass")
	ErrAlreadyIssued          = errors.New("certificate already issued for this attempt")
	ErrCertificateNotFound    = errors.New("certificate not found")
	ErrCertificateRevoked     = errors.New("certificate has been revoked")
	ErrCertificateExpired     = errors.New("certificate has expired")
	ErrAlreadyRevoked         = errors.New("certificate already revoked")
	ErrCertificateFileMissing = errors.New("certificate file missing")
	ErrEmailFailed            = errors.New("certificate email failed")
)
