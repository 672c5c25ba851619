package negotiation

import (
	"errors"
	"fmt"
)

var ErrStateOrder = errors.New("negotiation: invalid state transition")

// State is one stage of the negotiation state machine. States only advance
// forward or to StateFailed; a completed stage is never revisited.
type State string

const (
	StateStart                State = "start"
	StateAwaitingContract     State = "awaiting_contract_response"
	StateAwaitingAck          State = "awaiting_agreement_ack"
	StateAwaitingDescriptions State = "awaiting_descriptions"
	StateAwaitingArtifacts    State = "awaiting_artifacts"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

var stateRank = map[State]int{
	StateStart:                0,
	StateAwaitingContract:     1,
	StateAwaitingAck:          2,
	StateAwaitingDescriptions: 3,
	StateAwaitingArtifacts:    4,
	StateDone:                 5,
	StateFailed:               6,
}

// DownloadPolicy decides whether artifact bytes are fetched right after
// agreement, never, or per the connector's own configuration.
type DownloadPolicy string

const (
	PolicyAlways           DownloadPolicy = "always"
	PolicyNever            DownloadPolicy = "never"
	PolicyConnectorDecides DownloadPolicy = "connector_decides"
)

// Context is the transient per-negotiation state threaded through the
// stage transitions. One negotiation owns exactly one Context; nothing is
// shared, so no locking is needed.
type Context struct {
	Recipient        string
	Correlation      string
	State            State
	PendingResources []string
	Artifacts        []string
	AgreementID      string
	Policy           DownloadPolicy
}

// advance moves the machine forward. Moving backward or out of a terminal
// state is a programming error surfaced as ErrStateOrder.
func (c *Context) advance(next State) error {
	if c.State == StateDone || c.State == StateFailed {
		return fmt.Errorf("%w: %s is terminal", ErrStateOrder, c.State)
	}
	if next != StateFailed && stateRank[next] <= stateRank[c.State] {
		return fmt.Errorf("%w: %s -> %s", ErrStateOrder, c.State, next)
	}
	c.State = next
	return nil
}
