package sync

import "errors"

var (
	// ErrAuth covers token exchange/refresh failures. Fatal for the run; if the
	// refresh token is also invalid the tenant must re-authorize.
	ErrAuth = errors.New("vendor authentication failed")

	// ErrTransientAPI covers remote 5xx and timeouts. Aborts the current run;
	// recovery is the next scheduled or manual attempt.
	ErrTransientAPI = errors.New("transient vendor api error")

	// ErrSyncInProgress rejects a second sync attempt for a connection that
	// already has one in flight. Nothing is mutated.
	ErrSyncInProgress = errors.New("sync already in progress")

	ErrConnectionNotFound  = errors.New("connection not found")
	ErrConnectionInactive  = errors.New("connection is deactivated")
	ErrEntityNotFound      = errors.New("remote entity not found")
	ErrRunNotFound         = errors.New("sync run not found")
	ErrRefreshTokenMissing = errors.New("no refresh token stored")
	ErrUnknownProvider     = errors.New("unknown provider")
)
