package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classifying every failure the platform surfaces. Callers
// wrap them with fmt.Errorf("...: %w", err) and branch with errors.Is.
var (
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing resource within the caller's tenant.
	ErrNotFound = errors.New("not found")

	// ErrTenantNotFound marks an unresolvable host or tenant id. The API
	// response must not disclose which tenant was being resolved.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrConflict marks an optimistic-lock failure or an idempotency-key
	// replay whose request differs from the original.
	ErrConflict = errors.New("conflict")

	// ErrTenantMismatch marks an attempted cross-tenant read or write. It is
	// an internal invariant breach: 500 externally, security alert internally.
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrNoContext marks a repository call without a bound tenant context.
	// Programmer error; fail fast, never retried.
	ErrNoContext = errors.New("no tenant context")

	// ErrContextConflict marks a second Bind with a different tenant id on
	// the same task.
	ErrContextConflict = errors.New("tenant context already bound")

	// ErrStoreSuspended marks a host that resolved to a suspended tenant.
	// The storefront answers 403 with a fixed body, nothing tenant-specific.
	ErrStoreSuspended = errors.New("store suspended")

	// ErrQuotaExceeded marks a tenant resource quota breach.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrRateLimited marks token-bucket exhaustion.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient marks an external dependency that is temporarily
	// unavailable. Retried per RetryPolicy until the DLQ takes the job.
	ErrTransient = errors.New("transient external failure")

	// ErrPermanent marks a non-retriable provider outcome (e.g. card
	// declined). Surfaced immediately, never retried.
	ErrPermanent = errors.New("permanent external failure")

	// ErrFatal marks a violated write-once invariant (e.g. audit write
	// failure). The initiating request is blocked.
	ErrFatal = errors.New("fatal invariant failure")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// NotFoundf wraps ErrNotFound with the missing resource identity.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with a formatted detail message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Transientf wraps ErrTransient with a formatted detail message.
func Transientf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrTransient)...)
}

// Permanentf wraps ErrPermanent with a formatted detail message.
func Permanentf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPermanent)...)
}

func IsValidation(err error) bool      { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsTenantNotFound(err error) bool  { return errors.Is(err, ErrTenantNotFound) }
func IsConflict(err error) bool        { return errors.Is(err, ErrConflict) }
func IsTenantMismatch(err error) bool  { return errors.Is(err, ErrTenantMismatch) }
func IsNoContext(err error) bool       { return errors.Is(err, ErrNoContext) }
func IsQuotaExceeded(err error) bool   { return errors.Is(err, ErrQuotaExceeded) }
func IsRateLimited(err error) bool     { return errors.Is(err, ErrRateLimited) }
func IsTransient(err error) bool       { return errors.Is(err, ErrTransient) }
func IsPermanent(err error) bool       { return errors.Is(err, ErrPermanent) }
func IsFatal(err error) bool           { return errors.Is(err, ErrFatal) }
func IsContextConflict(err error) bool { return errors.Is(err, ErrContextConflict) }
func IsStoreSuspended(err error) bool  { return errors.Is(err, ErrStoreSuspended) }

// Retryable reports whether a job failure should be retried per policy.
// Validation, permanent, mismatch, and fatal failures go straight to the DLQ.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsValidation(err), IsPermanent(err), IsTenantMismatch(err), IsFatal(err), IsNoContext(err), IsStoreSuspended(err):
		return false
	default:
		return true
	}
}

// HTTPStatus maps an error to the status code the API layer writes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsTenantNotFound(err), IsNotFound(err):
		return http.StatusNotFound
	case IsStoreSuspended(err):
		return http.StatusForbidden
	case IsConflict(err), IsContextConflict(err):
		return http.StatusConflict
	case IsQuotaExceeded(err):
		return http.StatusPaymentRequired
	case IsRateLimited(err):
		return http.StatusTooManyRequests
	case IsPermanent(err):
		return http.StatusUnprocessableEntity
	case IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		// TenantMismatch, NoContext, Fatal and unclassified errors are
		// internal failures; details stay out of the response body.
		return http.StatusInternalServerError
	}
}
