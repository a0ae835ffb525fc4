package ikev1

import "github.com/PatrisiousHaddad/libreswan/internal/ikev1/wire"

// Exchange names which IKEv1 exchange a transition belongs to.
type Exchange uint8

const (
	ExchangeMain Exchange = iota
	ExchangeAggressive
	ExchangeQuick
	ExchangeTransaction // XAUTH / Mode-Config
	ExchangeInformational
)

func (e Exchange) String() string {
	switch e {
	case ExchangeMain:
		return "MAIN"
	case ExchangeAggressive:
		return "AGGRESSIVE"
	case ExchangeQuick:
		return "QUICK"
	case ExchangeTransaction:
		return "TRANSACTION"
	case ExchangeInformational:
		return "INFORMATIONAL"
	default:
		return "unknown-exchange"
	}
}

// RecvRole mirrors internal/ikev2's: REQUEST/RESPONSE for a received
// message, NONE for a locally-triggered send with nothing yet received.
type RecvRole uint8

const (
	RoleNone RecvRole = iota
	RoleRequest
	RoleResponse
)

// PayloadSet is the IKEv1 analog of internal/ikev2's PayloadSet, against
// the smaller RFC 2408 payload set.
type PayloadSet struct {
	Required []wire.PayloadType
	Optional []wire.PayloadType
}

// repeatablePayloads may appear more than once without being flagged
// excessive — Notify, Delete and VendorID, same rationale as internal/ikev2.
var repeatablePayloads = map[wire.PayloadType]bool{
	wire.PayloadNotify:   true,
	wire.PayloadDelete:   true,
	wire.PayloadVendorID: true,
}

var everywherePayloads = map[wire.PayloadType]bool{
	wire.PayloadNotify:   true,
	wire.PayloadVendorID: true,
}

// Transition is one edge of the IKEv1 state machine.
type Transition struct {
	From         []State
	To           State
	Exchange     Exchange
	RecvRole     RecvRole
	Message      PayloadSet
	RequiresHash bool
	Processor    func(*Session, *wire.Header, map[wire.PayloadType][]byte) error
}

// transitions is the representative Main/Aggressive/Quick/Transaction/
// Informational flow §4.6 names: smaller than internal/ikev2's table
// because IKEv1 has fewer exchange types, but the same first-match payload
// verification discipline.
var transitions = []Transition{
	// Main Mode, initiator.
	{From: []State{MAIN_I0}, To: MAIN_I1, Exchange: ExchangeMain, RecvRole: RoleNone},
	{
		From: []State{MAIN_I1}, To: MAIN_I2, Exchange: ExchangeMain, RecvRole: RoleResponse,
		Message:   PayloadSet{Required: []wire.PayloadType{wire.PayloadSA}},
		Processor: mainProcessor,
	},
	{
		From: []State{MAIN_I2}, To: MAIN_I3, Exchange: ExchangeMain, RecvRole: RoleResponse,
		Message:   PayloadSet{Required: []wire.PayloadType{wire.PayloadKE, wire.PayloadNonce}},
		Processor: mainProcessor,
	},
	{
		From: []State{MAIN_I3}, To: PHASE1_ESTABLISHED, Exchange: ExchangeMain, RecvRole: RoleResponse,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadID, wire.PayloadHash}},
		RequiresHash: true,
		Processor:    mainProcessor,
	},
	// Main Mode, responder.
	{
		From: []State{MAIN_R0}, To: MAIN_R1, Exchange: ExchangeMain, RecvRole: RoleRequest,
		Message:   PayloadSet{Required: []wire.PayloadType{wire.PayloadSA}},
		Processor: mainProcessor,
	},
	{
		From: []State{MAIN_R1}, To: MAIN_R2, Exchange: ExchangeMain, RecvRole: RoleRequest,
		Message:   PayloadSet{Required: []wire.PayloadType{wire.PayloadKE, wire.PayloadNonce}},
		Processor: mainProcessor,
	},
	// A comment in the Main-Mode matcher notes that authentication is
	// deliberately not checked here and asks "Why?" — this transition
	// accepts the initiator's ID+HASH on payload shape alone; the HASH_I
	// value is not compared against what this side's own keys would
	// compute. Preserved as-is rather than silently fixed. The responder
	// becomes established as soon as it sends its own ID+HASH back, with
	// no further message to wait for.
	{
		From: []State{MAIN_R2}, To: PHASE1_ESTABLISHED, Exchange: ExchangeMain, RecvRole: RoleRequest,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadID, wire.PayloadHash}},
		RequiresHash: true,
		Processor:    mainProcessor,
	},
	// Aggressive Mode, initiator: one round trip plus a final confirm.
	{
		From: []State{AGGR_I0}, To: AGGR_I1, Exchange: ExchangeAggressive, RecvRole: RoleResponse,
		Message: PayloadSet{Required: []wire.PayloadType{wire.PayloadSA, wire.PayloadKE, wire.PayloadNonce, wire.PayloadID, wire.PayloadHash}},
	},
	{From: []State{AGGR_I1}, To: PHASE1_ESTABLISHED, Exchange: ExchangeAggressive, RecvRole: RoleNone, RequiresHash: true},
	// Aggressive Mode, responder.
	{
		From: []State{AGGR_R0}, To: AGGR_R1, Exchange: ExchangeAggressive, RecvRole: RoleRequest,
		Message: PayloadSet{Required: []wire.PayloadType{wire.PayloadSA, wire.PayloadKE, wire.PayloadNonce, wire.PayloadID}},
	},
	{
		From: []State{AGGR_R1}, To: PHASE1_ESTABLISHED, Exchange: ExchangeAggressive, RecvRole: RoleRequest,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadHash}},
		RequiresHash: true,
	},
	// XAUTH (Transaction exchange), available once Phase 1 is established.
	{From: []State{PHASE1_ESTABLISHED}, To: XAUTH_I0, Exchange: ExchangeTransaction, RecvRole: RoleNone, RequiresHash: true},
	{
		From: []State{XAUTH_I0}, To: XAUTH_ESTABLISHED, Exchange: ExchangeTransaction, RecvRole: RoleResponse,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadAttributes}},
		RequiresHash: true,
	},
	{
		From: []State{PHASE1_ESTABLISHED}, To: XAUTH_R0, Exchange: ExchangeTransaction, RecvRole: RoleRequest,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadAttributes}},
		RequiresHash: true,
	},
	{From: []State{XAUTH_R0}, To: XAUTH_ESTABLISHED, Exchange: ExchangeTransaction, RecvRole: RoleNone, RequiresHash: true},
	// Quick Mode, initiator: one round trip gets both directions'
	// keying material, followed by a HASH(3) confirm the responder needs
	// before it dare use the SA.
	{From: []State{PHASE1_ESTABLISHED, XAUTH_ESTABLISHED}, To: QUICK_I0, Exchange: ExchangeQuick, RecvRole: RoleNone, RequiresHash: true},
	{
		From: []State{QUICK_I0}, To: PHASE2_ESTABLISHED, Exchange: ExchangeQuick, RecvRole: RoleResponse,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadSA, wire.PayloadNonce}, Optional: []wire.PayloadType{wire.PayloadKE}},
		RequiresHash: true,
		Processor:    quickProcessor,
	},
	// Quick Mode, responder: split across two messages so the routing
	// engine can install the inbound SA on the first and the outbound SA
	// only once the initiator's confirming third message arrives, matching
	// the UNROUTED_INBOUND / ROUTED_INBOUND_NEGOTIATION intermediate states.
	{
		From: []State{PHASE1_ESTABLISHED, XAUTH_ESTABLISHED}, To: QUICK_R0, Exchange: ExchangeQuick, RecvRole: RoleRequest,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadSA, wire.PayloadNonce}, Optional: []wire.PayloadType{wire.PayloadKE}},
		RequiresHash: true,
		Processor:    quickProcessor,
	},
	{
		From: []State{QUICK_R0}, To: PHASE2_ESTABLISHED, Exchange: ExchangeQuick, RecvRole: RoleRequest,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadHash}},
		RequiresHash: true,
		Processor:    quickProcessor,
	},
	// Informational: Delete and DPD R-U-THERE/R-U-THERE-ACK, from any
	// established state.
	{
		From: []State{PHASE1_ESTABLISHED, PHASE2_ESTABLISHED, XAUTH_ESTABLISHED}, To: IKE_SA_DELETE,
		Exchange: ExchangeInformational, RecvRole: RoleRequest,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadDelete}},
		RequiresHash: true,
	},
	{
		From: []State{PHASE1_ESTABLISHED, PHASE2_ESTABLISHED, XAUTH_ESTABLISHED}, To: PHASE1_ESTABLISHED,
		Exchange: ExchangeInformational, RecvRole: RoleRequest,
		Message:      PayloadSet{Required: []wire.PayloadType{wire.PayloadNotify}},
		RequiresHash: true,
	},
}

// payloadDiff mirrors internal/ikev2's payloadDiff against the smaller
// IKEv1 payload set.
func payloadDiff(present []wire.PayloadType, repeated map[wire.PayloadType]int, t Transition) (excessive, missing, unexpected []wire.PayloadType) {
	for pt, n := range repeated {
		if n > 1 && !repeatablePayloads[pt] {
			excessive = append(excessive, pt)
		}
	}
	have := map[wire.PayloadType]bool{}
	for _, pt := range present {
		have[pt] = true
	}
	for _, pt := range t.Message.Required {
		if !have[pt] {
			missing = append(missing, pt)
		}
	}
	allowed := map[wire.PayloadType]bool{}
	for _, pt := range t.Message.Required {
		allowed[pt] = true
	}
	for _, pt := range t.Message.Optional {
		allowed[pt] = true
	}
	for pt := range have {
		if !allowed[pt] && !everywherePayloads[pt] {
			unexpected = append(unexpected, pt)
		}
	}
	return
}

// MatchTransition is the IKEv1 analog of internal/ikev2.MatchTransition:
// first-match payload verification against the current state/exchange/role.
func MatchTransition(from State, exchange Exchange, role RecvRole, present []wire.PayloadType) (Transition, bool) {
	repeated := map[wire.PayloadType]int{}
	for _, pt := range present {
		repeated[pt]++
	}
	for _, t := range transitions {
		if t.Exchange != exchange || t.RecvRole != role {
			continue
		}
		attached := false
		for _, f := range t.From {
			if f == from {
				attached = true
				break
			}
		}
		if !attached {
			continue
		}
		excessive, missing, unexpected := payloadDiff(present, repeated, t)
		if len(excessive) == 0 && len(missing) == 0 && len(unexpected) == 0 {
			return t, true
		}
	}
	return Transition{}, false
}
