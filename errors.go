package pulsedb

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFile is returned when opening a path that does not exist or is
	// not a regular file.
	ErrNoFile = errors.New("no such database file")
	// ErrBadTag is returned when a row starts with an unknown record tag.
	ErrBadTag = errors.New("bad record tag")
	// ErrTruncatedInput is returned when a row ends before its encoding does.
	ErrTruncatedInput = errors.New("truncated record")
	// ErrBadVarint is returned when a varint field does not terminate.
	ErrBadVarint = errors.New("malformed varint")
	// ErrDepthMismatch is returned when a market-data record does not carry
	// the number of levels the file header promises.
	ErrDepthMismatch = errors.New("record depth does not match file depth")

	// ErrBadTimestamp is returned for events without a positive timestamp.
	ErrBadTimestamp = errors.New("bad event timestamp")
	// ErrBadPrice is returned for trades without a positive finite price.
	ErrBadPrice = errors.New("bad trade price")
	// ErrBadVolume is returned for trades with an invalid volume.
	ErrBadVolume = errors.New("bad trade volume")
	// ErrBadBid is returned for market data with an invalid bid side.
	ErrBadBid = errors.New("bad bid quotes")
	// ErrBadAsk is returned for market data with an invalid ask side.
	ErrBadAsk = errors.New("bad ask quotes")
	// ErrInvalidEvent is returned for events of an unknown kind.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrNotThisDay is returned when an appended event's timestamp falls
	// outside the calendar day the file covers.
	ErrNotThisDay = errors.New("event timestamp is outside the file's day")
	// ErrReopenInAppendMode is returned when appending to a closed appender.
	ErrReopenInAppendMode = errors.New("appender is closed, reopen in append mode")
	// ErrOrphanDelta is returned when a delta row is decoded without a
	// preceding full snapshot.
	ErrOrphanDelta = errors.New("delta row without a preceding full snapshot")
)

// MigrationError is returned when a file was written by a different format
// version and the caller did not request a migration-tolerant open.
type MigrationError struct {
	Path    string
	Version int
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("%s: format version %d needs migration", e.Path, e.Version)
}
