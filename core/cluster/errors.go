package cluster

import "errors"

var (
	// Transport errors
	ErrTransportClosed = errors.New("transport closed")
	ErrUnknownMember   = errors.New("unknown member")

	// Wire errors
	ErrUnknownOp          = errors.New("unknown op")
	ErrUnsupportedVersion = errors.New("unsupported frame version")

	// Node errors
	ErrNodeRunning    = errors.New("node already running")
	ErrNodeNotRunning = errors.New("node not running")
)
