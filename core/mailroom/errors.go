package mailroom

import "errors"

var (
	ErrCodecRegistered = errors.New("codec already registered for type")
	ErrNoCodec         = errors.New("no codec registered for type")
	ErrClosed          = errors.New("mailroom closed")
)
