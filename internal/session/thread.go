package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSuffix returns n random base36 characters (n <= 16), one per byte of a
// random uuid.
func NewSuffix(n int) string {
	u := uuid.New()
	if n > len(u) {
		n = len(u)
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = base36[int(u[i])%len(base36)]
	}
	return string(out)
}

// NewThreadID mints a conversation thread identifier: thread_<epoch-ms>_<7 chars>.
func NewThreadID(now time.Time) string {
	return fmt.Sprintf("thread_%d_%s", now.UnixMilli(), NewSuffix(7))
}
