package messaging

import (
	"encoding/json"
)

// Metadata keys attached to every request and reply.
const (
	MetaOperation     = "operation"
	MetaCorrelationID = "correlation_id"
	MetaReplyTo       = "reply_to"
	MetaSource        = "source"
)

// Topic names; request and reply topics are prefixed with the owning context id.
const (
	TopicBroadcast = "broadcast"
	TopicLifecycle = "lifecycle"

	requestsSuffix = ".requests"
	repliesSuffix  = ".replies"
)

const (
	EventConfigUpdated  = "config-updated"
	EventContextStarted = "context-started"
	EventContextStopped = "context-stopped"
)

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Response is the reply envelope for every request.
type Response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// BroadcastEvent is published to every context on the broadcast topic.
type BroadcastEvent struct {
	Event  string          `json:"event"`
	Config json.RawMessage `json:"config,omitempty"`
}

// LifecycleEvent announces a context starting or stopping.
type LifecycleEvent struct {
	Event   string `json:"event"`
	Context string `json:"context"`
}

func requestsTopic(contextID string) string {
	return contextID + requestsSuffix
}

func repliesTopic(contextID string) string {
	return contextID + repliesSuffix
}
