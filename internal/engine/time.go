package engine

import (
	"time"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// TimeSource supplies the current time in unix seconds.
type TimeSource interface {
	Now() protocol.Timestamp
}

// SystemTime reads the wall clock.
type SystemTime struct{}

func (SystemTime) Now() protocol.Timestamp {
	return time.Now().Unix()
}
