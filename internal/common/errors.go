// Package common defines shared constants and sentinel errors used across
// uplink layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrTaskNotFound  = errors.New("task not found")
	ErrChunkNotFound = errors.New("chunk not found")

	// Admission / lifecycle errors.
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrManagerClosed     = errors.New("manager closed")
	ErrWorkerClosed      = errors.New("worker closed")

	// Auth errors (missing, malformed or expired token).
	ErrNoAccessToken = errors.New("no access token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")

	// Source-file errors on resume.
	ErrFileMissing = errors.New("source file missing")
	ErrFileChanged = errors.New("source file changed since submission")
)
