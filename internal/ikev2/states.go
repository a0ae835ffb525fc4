package ikev2

import "fmt"

// State is one node of the IKEv2 exchange state machine, §4.5.
type State uint8

const (
	IKE_SA_INIT_I0 State = iota
	IKE_SA_INIT_I
	IKE_SA_INIT_R0
	IKE_SA_INIT_R
	IKE_SA_INIT_IR
	IKE_INTERMEDIATE_I
	IKE_INTERMEDIATE_R
	IKE_INTERMEDIATE_IR
	IKE_AUTH_I
	IKE_AUTH_EAP_R
	ESTABLISHED_IKE_SA
	NEW_CHILD_I1
	NEW_CHILD_R0
	REKEY_CHILD_I1
	REKEY_CHILD_R0
	REKEY_IKE_I1
	REKEY_IKE_R0
	ESTABLISHED_CHILD_SA
	IKE_SA_DELETE
	CHILD_SA_DELETE

	stateCount
)

var stateNames = [stateCount]string{
	IKE_SA_INIT_I0:       "IKE_SA_INIT_I0",
	IKE_SA_INIT_I:        "IKE_SA_INIT_I",
	IKE_SA_INIT_R0:       "IKE_SA_INIT_R0",
	IKE_SA_INIT_R:        "IKE_SA_INIT_R",
	IKE_SA_INIT_IR:       "IKE_SA_INIT_IR",
	IKE_INTERMEDIATE_I:   "IKE_INTERMEDIATE_I",
	IKE_INTERMEDIATE_R:   "IKE_INTERMEDIATE_R",
	IKE_INTERMEDIATE_IR:  "IKE_INTERMEDIATE_IR",
	IKE_AUTH_I:           "IKE_AUTH_I",
	IKE_AUTH_EAP_R:       "IKE_AUTH_EAP_R",
	ESTABLISHED_IKE_SA:   "ESTABLISHED_IKE_SA",
	NEW_CHILD_I1:         "NEW_CHILD_I1",
	NEW_CHILD_R0:         "NEW_CHILD_R0",
	REKEY_CHILD_I1:       "REKEY_CHILD_I1",
	REKEY_CHILD_R0:       "REKEY_CHILD_R0",
	REKEY_IKE_I1:         "REKEY_IKE_I1",
	REKEY_IKE_R0:         "REKEY_IKE_R0",
	ESTABLISHED_CHILD_SA: "ESTABLISHED_CHILD_SA",
	IKE_SA_DELETE:        "IKE_SA_DELETE",
	CHILD_SA_DELETE:      "CHILD_SA_DELETE",
}

func (s State) String() string {
	if int(s) < len(stateNames) && stateNames[s] != "" {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Category buckets states for counters/limits, per §4.5.
type Category uint8

const (
	CategoryHalfOpen Category = iota
	CategoryOpen
	CategoryEstablished
	CategoryInformational
	CategoryIgnore
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
	case CategoryIgnore:
		return "ignore"
	default:
		return "unknown-category"
	}
}

// stateInfo records a state's category and whether every incoming
// transition into it requires the SK envelope.
type stateInfo struct {
	category Category
	secured  bool
}

var states = map[State]stateInfo{
	IKE_SA_INIT_I0:       {CategoryHalfOpen, false},
	IKE_SA_INIT_I:        {CategoryHalfOpen, false},
	IKE_SA_INIT_R0:       {CategoryHalfOpen, false},
	IKE_SA_INIT_R:        {CategoryHalfOpen, false},
	IKE_SA_INIT_IR:       {CategoryOpen, false},
	IKE_INTERMEDIATE_I:   {CategoryOpen, true},
	IKE_INTERMEDIATE_R:   {CategoryOpen, true},
	IKE_INTERMEDIATE_IR:  {CategoryOpen, true},
	IKE_AUTH_I:           {CategoryOpen, true},
	IKE_AUTH_EAP_R:       {CategoryOpen, true},
	ESTABLISHED_IKE_SA:   {CategoryEstablished, true},
	NEW_CHILD_I1:         {CategoryEstablished, true},
	NEW_CHILD_R0:         {CategoryEstablished, true},
	REKEY_CHILD_I1:       {CategoryEstablished, true},
	REKEY_CHILD_R0:       {CategoryEstablished, true},
	REKEY_IKE_I1:         {CategoryEstablished, true},
	REKEY_IKE_R0:         {CategoryEstablished, true},
	ESTABLISHED_CHILD_SA: {CategoryEstablished, true},
	IKE_SA_DELETE:        {CategoryInformational, true},
	CHILD_SA_DELETE:      {CategoryInformational, true},
}

func (s State) Category() Category { return states[s].category }
func (s State) Secured() bool      { return states[s].secured }

// CheckStates runs the self-consistency checks §4.5 requires once at
// startup. Any failure here is a programming error in the transition
// table, not a runtime condition — callers are expected to panic on a
// non-nil return during initialization, the same discipline
// internal/routing applies to unhandled dispatch triples.
func CheckStates() error {
	for _, t := range transitions {
		if _, ok := states[t.To]; !ok {
			return fmt.Errorf("ikev2: transition to unknown state %s", t.To)
		}
		found := false
		for _, from := range t.From {
			if _, ok := states[from]; !ok {
				return fmt.Errorf("ikev2: transition from unknown state %s", from)
			}
			found = true
		}
		if !found {
			return fmt.Errorf("ikev2: transition to %s has empty From set", t.To)
		}
		for _, from := range t.From {
			if states[from].secured && !t.RequiresSK {
				return fmt.Errorf("ikev2: transition from secured state %s must require SK", from)
			}
			if !states[from].secured && t.Exchange != ExchangeIkeSaInit && t.RequiresSK {
				// an unsecured source state accepting an SK-bearing
				// transition is fine (e.g. IKE_AUTH's first message);
				// what's disallowed is the reverse, checked above.
				continue
			}
			if !states[from].secured && t.Exchange != ExchangeIkeSaInit && !t.RequiresSK {
				return fmt.Errorf("ikev2: only IKE_SA_INIT may originate in unsecured state %s (got %s)", from, t.Exchange)
			}
		}
	}
	return nil
}
