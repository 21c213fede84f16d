package bot

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheExpired means the listing a number refers to is gone or older than the TTL
	ErrCacheExpired = errors.New("session expired")
	// ErrTypeDisabled is returned when a user asks for a resource type switched off in config
	ErrTypeDisabled = errors.New("resource type disabled")
	// ErrTransferDisabled means no transfer system is configured
	ErrTransferDisabled = errors.New("transfer not enabled")
	// ErrNotTransferable is returned for resources other than 115 shares
	ErrNotTransferable = errors.New("resource type cannot be transferred")
)

// InvalidSelectionError is returned for an index outside 1..Max
type InvalidSelectionError struct {
	Index int
	Max   int
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid selection %d, valid range is 1-%d", e.Index, e.Max)
}
