// Package ikev1 implements the smaller, analogous §4.6 state machine: Main
// Mode, Aggressive Mode (PSK/RSA), Quick Mode, XAUTH, and DPD, built the
// same table-driven way internal/ikev2's states.go/transitions.go are, but
// against the RFC 2408/2409 payload set internal/ikev1/wire frames.
package ikev1

import "fmt"

// State is one node of the IKEv1 exchange state machine.
type State uint8

const (
	MAIN_I0 State = iota
	MAIN_I1
	MAIN_I2
	MAIN_I3
	MAIN_R0
	MAIN_R1
	MAIN_R2
	AGGR_I0
	AGGR_I1
	AGGR_R0
	AGGR_R1
	PHASE1_ESTABLISHED
	XAUTH_I0
	XAUTH_R0
	XAUTH_ESTABLISHED
	// Quick Mode's responder is split across two message exchanges: the
	// inbound SA/policy installs on the first message, the outbound only
	// once the responder's own second message is acknowledged — the same
	// split internal/routing's UNROUTED_INBOUND/ROUTED_INBOUND_NEGOTIATION
	// intermediate states exist for.
	QUICK_I0
	QUICK_I1
	QUICK_R0
	QUICK_R1
	PHASE2_ESTABLISHED
	IKE_SA_DELETE
	CHILD_SA_DELETE

	stateCount
)

var stateNames = [stateCount]string{
	MAIN_I0:             "MAIN_I0",
	MAIN_I1:             "MAIN_I1",
	MAIN_I2:             "MAIN_I2",
	MAIN_I3:             "MAIN_I3",
	MAIN_R0:             "MAIN_R0",
	MAIN_R1:             "MAIN_R1",
	MAIN_R2:             "MAIN_R2",
	AGGR_I0:             "AGGR_I0",
	AGGR_I1:             "AGGR_I1",
	AGGR_R0:             "AGGR_R0",
	AGGR_R1:             "AGGR_R1",
	PHASE1_ESTABLISHED:  "PHASE1_ESTABLISHED",
	XAUTH_I0:            "XAUTH_I0",
	XAUTH_R0:            "XAUTH_R0",
	XAUTH_ESTABLISHED:   "XAUTH_ESTABLISHED",
	QUICK_I0:            "QUICK_I0",
	QUICK_I1:            "QUICK_I1",
	QUICK_R0:            "QUICK_R0",
	QUICK_R1:            "QUICK_R1",
	PHASE2_ESTABLISHED:  "PHASE2_ESTABLISHED",
	IKE_SA_DELETE:       "IKE_SA_DELETE",
	CHILD_SA_DELETE:     "CHILD_SA_DELETE",
}

func (s State) String() string {
	if int(s) < len(stateNames) && stateNames[s] != "" {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Category buckets states for counters/limits, mirroring internal/ikev2.
type Category uint8

const (
	CategoryHalfOpen Category = iota
	CategoryOpen
	CategoryEstablished
	CategoryInformational
)

func (c Category) String() string {
	switch c {
	case CategoryHalfOpen:
		return "half-open"
	case CategoryOpen:
		return "open"
	case CategoryEstablished:
		return "established"
	case CategoryInformational:
		return "informational"
	default:
		return "unknown-category"
	}
}

// stateInfo records a state's category and whether incoming messages from
// it onward must carry the Hash payload a Phase 1 SA's keys authenticate.
type stateInfo struct {
	category Category
	secured  bool
}

var states = map[State]stateInfo{
	MAIN_I0:            {CategoryHalfOpen, false},
	MAIN_I1:            {CategoryHalfOpen, false},
	MAIN_I2:            {CategoryOpen, false},
	MAIN_I3:            {CategoryOpen, true},
	MAIN_R0:            {CategoryHalfOpen, false},
	MAIN_R1:            {CategoryHalfOpen, false},
	MAIN_R2:            {CategoryOpen, true},
	AGGR_I0:            {CategoryHalfOpen, false},
	AGGR_I1:            {CategoryOpen, true},
	AGGR_R0:            {CategoryHalfOpen, false},
	AGGR_R1:            {CategoryOpen, true},
	PHASE1_ESTABLISHED: {CategoryEstablished, true},
	XAUTH_I0:           {CategoryEstablished, true},
	XAUTH_R0:           {CategoryEstablished, true},
	XAUTH_ESTABLISHED:  {CategoryEstablished, true},
	QUICK_I0:           {CategoryEstablished, true},
	QUICK_I1:           {CategoryEstablished, true},
	QUICK_R0:           {CategoryEstablished, true},
	QUICK_R1:           {CategoryEstablished, true},
	PHASE2_ESTABLISHED: {CategoryEstablished, true},
	IKE_SA_DELETE:      {CategoryInformational, true},
	CHILD_SA_DELETE:    {CategoryInformational, true},
}

func (s State) Category() Category { return states[s].category }
func (s State) Secured() bool      { return states[s].secured }

// CheckStates runs the same self-consistency check internal/ikev2.CheckStates
// does: every transition must reference known states, and a transition
// leaving an unsecured (pre-keys) state may not itself require a Hash
// payload computed from keys that don't exist yet.
func CheckStates() error {
	for _, t := range transitions {
		if _, ok := states[t.To]; !ok {
			return fmt.Errorf("ikev1: transition to unknown state %s", t.To)
		}
		if len(t.From) == 0 {
			return fmt.Errorf("ikev1: transition to %s has empty From set", t.To)
		}
		for _, from := range t.From {
			if _, ok := states[from]; !ok {
				return fmt.Errorf("ikev1: transition from unknown state %s", from)
			}
			if !states[from].secured && t.RequiresHash {
				return fmt.Errorf("ikev1: transition from unkeyed state %s cannot require Hash", from)
			}
		}
	}
	return nil
}
