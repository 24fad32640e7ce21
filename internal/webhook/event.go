package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPayload marks a request body that passed signature verification
// but cannot be decoded into an event. The transport layer still ACKs these
// with a 2xx so the sender does not retry-storm.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// EventKind classifies an inbound trigger event.
type EventKind string

const (
	EventPullRequest    EventKind = "pull_request"
	EventPush           EventKind = "push"
	EventManualDispatch EventKind = "workflow_dispatch"
	EventOther          EventKind = "other"
)

// Event is the normalized form of an inbound webhook delivery.
type Event struct {
	Kind       EventKind
	Action     string // e.g. "opened", "synchronize" for pull requests
	RefName    string // branch name with refs/heads/ stripped
	Repository string // full name, owner/repo
	Raw        []byte // original payload, kept for diagnostics
}

// payload covers the fields we read from the sender's JSON. Everything else
// is ignored.
type payload struct {
	Action      string `json:"action"`
	Ref         string `json:"ref"`
	PullRequest *struct {
		Head struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// KindFromHint maps the transport's event-type header to an EventKind.
// Unrecognized values map to EventOther rather than failing, so the pipeline
// can acknowledge and ignore them.
func KindFromHint(hint string) EventKind {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "pull_request":
		return EventPullRequest
	case "push":
		return EventPush
	case "workflow_dispatch":
		return EventManualDispatch
	default:
		return EventOther
	}
}

// ParseEvent decodes verified raw bytes into an Event. The kind hint is
// supplied out-of-band by the transport (X-Webhook-Event header); when it is
// empty the kind is inferred from the payload shape.
func ParseEvent(body []byte, hint string) (*Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	kind := KindFromHint(hint)
	if hint == "" {
		switch {
		case p.PullRequest != nil:
			kind = EventPullRequest
		case p.Ref != "":
			kind = EventPush
		default:
			kind = EventOther
		}
	}

	ev := &Event{
		Kind:   kind,
		Action: p.Action,
		Raw:    body,
	}

	if p.Repository != nil {
		ev.Repository = p.Repository.FullName
	}

	switch {
	case p.PullRequest != nil && p.PullRequest.Head.Ref != "":
		ev.RefName = p.PullRequest.Head.Ref
	case p.Ref != "":
		ev.RefName = strings.TrimPrefix(p.Ref, "refs/heads/")
	}

	return ev, nil
}
