package cluster

import (
	"encoding/json"
	"fmt"
)

// FrameVersion is the version of the wire format written by this package.
const FrameVersion = 1

// Frame is the wire form of an Op sent by member From. Peers running
// different builds must agree on it, so fields are only ever added.
type Frame struct {
	V       int      `json:"v"`
	From    string   `json:"from"`
	Op      string   `json:"op"`
	Topic   string   `json:"topic,omitempty"`
	Content []byte   `json:"content,omitempty"`
	Members []string `json:"members,omitempty"`
}

// NewFrame wraps op for sending from member from.
func NewFrame(from string, op Op) Frame {
	f := Frame{V: FrameVersion, From: from, Op: op.OpName()}
	switch o := op.(type) {
	case SubscribeTopic:
		f.Topic = o.Topic
	case UnsubscribeTopic:
		f.Topic = o.Topic
	case DeliverMessage:
		f.Topic = o.Topic
		f.Content = o.Content
	case DeliverClusterBroadcast:
		f.Members = o.Members
	}
	return f
}

// Decode returns the op carried by f.
func (f Frame) Decode() (Op, error) {
	if f.V != FrameVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.V)
	}
	switch f.Op {
	case OpNameSubscribe:
		return SubscribeTopic{Topic: f.Topic}, nil
	case OpNameUnsubscribe:
		return UnsubscribeTopic{Topic: f.Topic}, nil
	case OpNameDeliver:
		return DeliverMessage{Topic: f.Topic, Content: f.Content}, nil
	case OpNameBroadcast:
		return DeliverClusterBroadcast{Members: f.Members}, nil
	case OpNameSync:
		return SyncInterest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, f.Op)
	}
}

// MarshalFrame encodes f for byte-oriented transports.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame is the inverse of MarshalFrame.
func UnmarshalFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
