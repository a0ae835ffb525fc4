package ikev1

import (
	"testing"

	"github.com/PatrisiousHaddad/libreswan/internal/ikev1/wire"
)

func TestCheckStatesIsConsistent(t *testing.T) {
	if err := CheckStates(); err != nil {
		t.Fatalf("CheckStates: %v", err)
	}
}

func TestStateStringKnown(t *testing.T) {
	if got := PHASE1_ESTABLISHED.String(); got != "PHASE1_ESTABLISHED" {
		t.Fatalf("String() = %q", got)
	}
	if got := State(250).String(); got != "State(250)" {
		t.Fatalf("unknown state String() = %q", got)
	}
}

func TestMatchTransitionMainModeInitiatorFlow(t *testing.T) {
	tr, ok := MatchTransition(MAIN_I1, ExchangeMain, RoleResponse, []wire.PayloadType{wire.PayloadSA})
	if !ok || tr.To != MAIN_I2 {
		t.Fatalf("expected transition to MAIN_I2, got %+v ok=%v", tr, ok)
	}

	tr, ok = MatchTransition(MAIN_I2, ExchangeMain, RoleResponse, []wire.PayloadType{wire.PayloadKE, wire.PayloadNonce})
	if !ok || tr.To != MAIN_I3 {
		t.Fatalf("expected transition to MAIN_I3, got %+v ok=%v", tr, ok)
	}

	tr, ok = MatchTransition(MAIN_I3, ExchangeMain, RoleResponse, []wire.PayloadType{wire.PayloadID, wire.PayloadHash})
	if !ok || tr.To != PHASE1_ESTABLISHED {
		t.Fatalf("expected transition to PHASE1_ESTABLISHED, got %+v ok=%v", tr, ok)
	}
}

func TestMatchTransitionMainModeResponderFlow(t *testing.T) {
	tr, ok := MatchTransition(MAIN_R0, ExchangeMain, RoleRequest, []wire.PayloadType{wire.PayloadSA})
	if !ok || tr.To != MAIN_R1 {
		t.Fatalf("expected transition to MAIN_R1, got %+v ok=%v", tr, ok)
	}

	tr, ok = MatchTransition(MAIN_R1, ExchangeMain, RoleRequest, []wire.PayloadType{wire.PayloadKE, wire.PayloadNonce})
	if !ok || tr.To != MAIN_R2 {
		t.Fatalf("expected transition to MAIN_R2, got %+v ok=%v", tr, ok)
	}

	tr, ok = MatchTransition(MAIN_R2, ExchangeMain, RoleRequest, []wire.PayloadType{wire.PayloadID, wire.PayloadHash})
	if !ok || tr.To != PHASE1_ESTABLISHED {
		t.Fatalf("expected transition to PHASE1_ESTABLISHED, got %+v ok=%v", tr, ok)
	}
}

func TestMatchTransitionQuickModeResponderSplit(t *testing.T) {
	tr, ok := MatchTransition(PHASE1_ESTABLISHED, ExchangeQuick, RoleRequest, []wire.PayloadType{wire.PayloadSA, wire.PayloadNonce})
	if !ok || tr.To != QUICK_R0 {
		t.Fatalf("expected transition to QUICK_R0, got %+v ok=%v", tr, ok)
	}

	tr, ok = MatchTransition(QUICK_R0, ExchangeQuick, RoleRequest, []wire.PayloadType{wire.PayloadHash})
	if !ok || tr.To != PHASE2_ESTABLISHED {
		t.Fatalf("expected transition to PHASE2_ESTABLISHED, got %+v ok=%v", tr, ok)
	}
}

func TestMatchTransitionRejectsMissingPayload(t *testing.T) {
	_, ok := MatchTransition(MAIN_I1, ExchangeMain, RoleResponse, nil)
	if ok {
		t.Fatalf("expected no match with missing SA payload")
	}
}

func TestMatchTransitionRejectsUnexpectedPayload(t *testing.T) {
	present := []wire.PayloadType{wire.PayloadSA, wire.PayloadKE}
	_, ok := MatchTransition(MAIN_I1, ExchangeMain, RoleResponse, present)
	if ok {
		t.Fatalf("expected no match with unexpected KE payload in MAIN_I1")
	}
}
