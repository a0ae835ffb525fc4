package ikev2

import "github.com/PatrisiousHaddad/libreswan/internal/protocol"

// Exchange names which IKEv2 exchange a transition belongs to.
type Exchange uint8

const (
	ExchangeIkeSaInit Exchange = iota
	ExchangeIntermediate
	ExchangeIkeAuth
	ExchangeCreateChildSa
	ExchangeInformational
)

func (e Exchange) String() string {
	switch e {
	case ExchangeIkeSaInit:
		return "IKE_SA_INIT"
	case ExchangeIntermediate:
		return "IKE_INTERMEDIATE"
	case ExchangeIkeAuth:
		return "IKE_AUTH"
	case ExchangeCreateChildSa:
		return "CREATE_CHILD_SA"
	case ExchangeInformational:
		return "INFORMATIONAL"
	default:
		return "unknown-exchange"
	}
}

// RecvRole is which side of an exchange a transition handles:
// REQUEST/RESPONSE for messages, or NONE for an initiator-triggered,
// locally-originated transition with nothing yet received.
type RecvRole uint8

const (
	RoleNone RecvRole = iota
	RoleRequest
	RoleResponse
)

// PayloadSet names the payload types a transition requires/allows/treats
// as a carried notification, per §4.5's payload-verification algorithm.
//
// Notification lists one of several alternative notify types that must be
// present for the transition to match (e.g. the IKE_SA_INIT cookie/invalid-KE
// retry). ExcludeNotification is the converse: none of the listed notify
// types may be present, used to keep a new-Child-SA request from matching
// the rekey-Child-SA transition it would otherwise look identical to.
type PayloadSet struct {
	Required            []protocol.PayloadType
	Optional            []protocol.PayloadType
	Notification        []protocol.NotificationType
	ExcludeNotification []protocol.NotificationType
}

// repeatable payloads may appear more than once in a message without
// being flagged "excessive"; everywhere payloads are allowed in any
// transition regardless of what it declares required/optional.
var repeatablePayloads = map[protocol.PayloadType]bool{
	protocol.PayloadTypeN:       true,
	protocol.PayloadTypeD:       true,
	protocol.PayloadTypeCP:      true,
	protocol.PayloadTypeV:       true,
	protocol.PayloadTypeCERT:    true,
	protocol.PayloadTypeCERTREQ: true,
}

var everywherePayloads = map[protocol.PayloadType]bool{
	protocol.PayloadTypeN: true,
	protocol.PayloadTypeV: true,
}

// Transition is one edge of the state machine: from a set of compatible
// source states, over one exchange/role, to a target state, guarded by
// the payloads the message must/may carry.
type Transition struct {
	From       []State
	To         State
	Exchange   Exchange
	RecvRole   RecvRole
	Message    PayloadSet
	RequiresSK bool
	Processor  func(*Session, *protocol.Message) error
}

// transitions is the representative flow table §4.5 names explicitly:
// initiator IKE_SA_INIT through ESTABLISHED_IKE_SA (with cookie/invalid-KE
// retry back to IKE_SA_INIT_I0), the responder mirror, and the
// CREATE_CHILD_SA / INFORMATIONAL exchanges once established. This is not
// the full RFC 7296 payload-by-payload table; it is the subset this
// module's Session dispatcher drives and CheckStates validates.
var transitions = []Transition{
	{
		From:     []State{IKE_SA_INIT_I0},
		To:       IKE_SA_INIT_I,
		Exchange: ExchangeIkeSaInit,
		RecvRole: RoleNone,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce},
		},
	},
	{
		From:     []State{IKE_SA_INIT_I},
		To:       IKE_SA_INIT_IR,
		Exchange: ExchangeIkeSaInit,
		RecvRole: RoleResponse,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce},
		},
	},
	// Anti-DDoS cookie and invalid-KE-group retries drop back to
	// IKE_SA_INIT_I0 and reissue — modeled as self-loops rather than new
	// states, since no keying material survives the retry.
	{
		From:     []State{IKE_SA_INIT_I},
		To:       IKE_SA_INIT_I0,
		Exchange: ExchangeIkeSaInit,
		RecvRole: RoleResponse,
		Message: PayloadSet{
			Notification: []protocol.NotificationType{protocol.COOKIE, protocol.INVALID_KE_PAYLOAD, protocol.REDIRECT},
		},
	},
	{
		From:     []State{IKE_SA_INIT_R0},
		To:       IKE_SA_INIT_R,
		Exchange: ExchangeIkeSaInit,
		RecvRole: RoleRequest,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce},
		},
	},
	{
		From:       []State{IKE_SA_INIT_IR},
		To:         IKE_AUTH_I,
		Exchange:   ExchangeIkeAuth,
		RecvRole:   RoleNone,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeIDi, protocol.PayloadTypeAUTH},
			Optional: []protocol.PayloadType{protocol.PayloadTypeCERT, protocol.PayloadTypeCERTREQ, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr, protocol.PayloadTypeCP},
		},
	},
	{
		From:       []State{IKE_AUTH_I},
		To:         ESTABLISHED_IKE_SA,
		Exchange:   ExchangeIkeAuth,
		RecvRole:   RoleResponse,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeIDr, protocol.PayloadTypeAUTH},
			Optional: []protocol.PayloadType{protocol.PayloadTypeCERT, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr, protocol.PayloadTypeCP, protocol.PayloadTypeEAP},
		},
	},
	{
		From:       []State{IKE_SA_INIT_R},
		To:         IKE_AUTH_EAP_R,
		Exchange:   ExchangeIkeAuth,
		RecvRole:   RoleRequest,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeIDi},
			Optional: []protocol.PayloadType{protocol.PayloadTypeAUTH, protocol.PayloadTypeCERT, protocol.PayloadTypeCERTREQ, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr, protocol.PayloadTypeCP},
		},
	},
	{
		From:       []State{IKE_AUTH_EAP_R},
		To:         ESTABLISHED_IKE_SA,
		Exchange:   ExchangeIkeAuth,
		RecvRole:   RoleRequest,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeIDi, protocol.PayloadTypeAUTH},
			Optional: []protocol.PayloadType{protocol.PayloadTypeTSi, protocol.PayloadTypeTSr, protocol.PayloadTypeCP},
		},
	},
	// CREATE_CHILD_SA, disambiguated per §4.5: no TS payloads at all means
	// rekey-IKE; TS present with N(REKEY_SA) means rekey-Child; TS present
	// without N(REKEY_SA) means a brand new Child SA. All three share the
	// same From/Exchange/Role and are told apart purely by payload shape and
	// notifyMatches, in table order, so new-Child must exclude REKEY_SA
	// explicitly or it would also accept a rekey-Child request.
	{
		From:       []State{ESTABLISHED_IKE_SA},
		To:         NEW_CHILD_I1,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleNone,
		RequiresSK: true,
		Message: PayloadSet{
			Required:            []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr},
			Optional:            []protocol.PayloadType{protocol.PayloadTypeKE},
			ExcludeNotification: []protocol.NotificationType{protocol.REKEY_SA},
		},
	},
	{
		From:       []State{NEW_CHILD_I1},
		To:         ESTABLISHED_CHILD_SA,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleResponse,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr},
			Optional: []protocol.PayloadType{protocol.PayloadTypeKE},
		},
	},
	{
		From:       []State{ESTABLISHED_IKE_SA},
		To:         NEW_CHILD_R0,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleRequest,
		RequiresSK: true,
		Message: PayloadSet{
			Required:            []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr},
			Optional:            []protocol.PayloadType{protocol.PayloadTypeKE},
			ExcludeNotification: []protocol.NotificationType{protocol.REKEY_SA},
		},
	},
	{
		From:       []State{NEW_CHILD_R0},
		To:         ESTABLISHED_CHILD_SA,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleNone,
		RequiresSK: true,
	},
	{
		From:       []State{ESTABLISHED_IKE_SA},
		To:         REKEY_CHILD_I1,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleNone,
		RequiresSK: true,
		Message: PayloadSet{
			Required:     []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr},
			Optional:     []protocol.PayloadType{protocol.PayloadTypeKE},
			Notification: []protocol.NotificationType{protocol.REKEY_SA},
		},
	},
	{
		From:       []State{REKEY_CHILD_I1},
		To:         ESTABLISHED_CHILD_SA,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleResponse,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr},
			Optional: []protocol.PayloadType{protocol.PayloadTypeKE},
		},
	},
	{
		From:       []State{ESTABLISHED_IKE_SA},
		To:         REKEY_CHILD_R0,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleRequest,
		RequiresSK: true,
		Message: PayloadSet{
			Required:     []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr},
			Optional:     []protocol.PayloadType{protocol.PayloadTypeKE},
			Notification: []protocol.NotificationType{protocol.REKEY_SA},
		},
	},
	{
		From:       []State{REKEY_CHILD_R0},
		To:         ESTABLISHED_CHILD_SA,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleNone,
		RequiresSK: true,
	},
	{
		From:       []State{ESTABLISHED_IKE_SA},
		To:         REKEY_IKE_I1,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleNone,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeKE},
		},
	},
	{
		From:       []State{REKEY_IKE_I1},
		To:         ESTABLISHED_IKE_SA,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleResponse,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeKE},
		},
	},
	{
		From:       []State{ESTABLISHED_IKE_SA},
		To:         REKEY_IKE_R0,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleRequest,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeKE},
		},
	},
	{
		From:       []State{REKEY_IKE_R0},
		To:         ESTABLISHED_IKE_SA,
		Exchange:   ExchangeCreateChildSa,
		RecvRole:   RoleNone,
		RequiresSK: true,
	},
	// INFORMATIONAL: liveness (empty body) and Delete, from any
	// established state.
	{
		From:       []State{ESTABLISHED_IKE_SA, ESTABLISHED_CHILD_SA},
		To:         ESTABLISHED_IKE_SA,
		Exchange:   ExchangeInformational,
		RecvRole:   RoleRequest,
		RequiresSK: true,
	},
	{
		From:       []State{ESTABLISHED_IKE_SA, ESTABLISHED_CHILD_SA},
		To:         IKE_SA_DELETE,
		Exchange:   ExchangeInformational,
		RecvRole:   RoleRequest,
		RequiresSK: true,
		Message: PayloadSet{
			Required: []protocol.PayloadType{protocol.PayloadTypeD},
		},
	},
}

// payloadDiff computes excessive/missing/unexpected per §4.5's
// verification algorithm.
func payloadDiff(present []protocol.PayloadType, repeated map[protocol.PayloadType]int, t Transition) (excessive, missing, unexpected []protocol.PayloadType) {
	for pt, n := range repeated {
		if n > 1 && !repeatablePayloads[pt] {
			excessive = append(excessive, pt)
		}
	}
	have := map[protocol.PayloadType]bool{}
	for _, pt := range present {
		have[pt] = true
	}
	for _, pt := range t.Message.Required {
		if !have[pt] {
			missing = append(missing, pt)
		}
	}
	allowed := map[protocol.PayloadType]bool{}
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

// notifyMatches reports whether the notify types carried on a message
// satisfy a transition's Notification/ExcludeNotification constraints: at
// least one of Notification (if non-empty) must be present, and none of
// ExcludeNotification may be present. Used to disambiguate CREATE_CHILD_SA's
// new-Child, rekey-Child, and rekey-IKE requests, which otherwise carry
// identical payload shapes, per §4.5.
func notifyMatches(notifs []protocol.NotificationType, t Transition) bool {
	have := map[protocol.NotificationType]bool{}
	for _, nt := range notifs {
		have[nt] = true
	}
	if len(t.Message.Notification) > 0 {
		any := false
		for _, nt := range t.Message.Notification {
			if have[nt] {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	for _, nt := range t.Message.ExcludeNotification {
		if have[nt] {
			return false
		}
	}
	return true
}

// MatchTransition implements the first-match payload verification
// algorithm of §4.5: given the current state, the exchange/role of an
// incoming message, its payload set, and the notify types it carries,
// return the first transition that accepts it.
func MatchTransition(from State, exchange Exchange, role RecvRole, present []protocol.PayloadType, notifs []protocol.NotificationType) (Transition, bool) {
	repeated := map[protocol.PayloadType]int{}
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
		if !notifyMatches(notifs, t) {
			continue
		}
		excessive, missing, unexpected := payloadDiff(present, repeated, t)
		if len(excessive) == 0 && len(missing) == 0 && len(unexpected) == 0 {
			return t, true
		}
	}
	return Transition{}, false
}
