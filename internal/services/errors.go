// Package services defines the business logic for authentication, counsel
// records, and AI analysis. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

// Authentication errors. Access-token failures never reach this layer: the
// gate resolves them into "no identity" using the auth package's own
// sentinel.
var (
	// ErrInvalidRefreshToken is returned by rotation when the presented
	// refresh token is not of type REFRESH, has no live server-side record,
	// is stale, or does not belong to the record's owner. The cause is
	// deliberately not distinguished.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Counsel errors.
var (
	// ErrCounselNotFound indicates that the requested counsel record does
	// not exist.
	ErrCounselNotFound = errors.New("counsel not found")

	// ErrForbidden is returned when the caller is not the owner of the
	// counsel they are trying to read or mutate.
	ErrForbidden = errors.New("not the counsel owner")

	// ErrAnalysisInProgress is returned when a retry is attempted while the
	// counsel is still PENDING.
	ErrAnalysisInProgress = errors.New("analysis is already in progress")

	// ErrAlreadyCompleted is returned when a retry is attempted on a
	// COMPLETED counsel.
	ErrAlreadyCompleted = errors.New("analysis already completed")

	// ErrInvalidDate is returned when the submitted counsel date does not
	// parse as yyyy-MM-dd.
	ErrInvalidDate = errors.New("counsel date must be yyyy-MM-dd")

	// ErrMalformedSummary is returned when the stored summary document does
	// not have the expected envelope shape.
	ErrMalformedSummary = errors.New("summary document has unexpected structure")
)

// Analysis errors.
var (
	// ErrCategoryNotFound indicates that the AI response carried no usable
	// classification.
	ErrCategoryNotFound = errors.New("category not found in AI response")

	// ErrAnalysisTransport indicates a timeout, connection failure, or
	// non-success status from the AI collaborator.
	ErrAnalysisTransport = errors.New("AI analysis request failed")

	// ErrAnalysisQuestionFailed is returned by the synchronous Q&A path for
	// any failure past the ownership check; unlike the fire-and-forget
	// analysis it is surfaced directly to the caller.
	ErrAnalysisQuestionFailed = errors.New("AI question processing failed")
)
