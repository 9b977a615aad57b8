package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is shared so ids minted in the same millisecond still sort in
// creation order.
var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

// New returns a ULID for the current time. Used for outbound request ids
// and audit event ids.
func New() string {
	return NewAt(time.Now())
}

func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
