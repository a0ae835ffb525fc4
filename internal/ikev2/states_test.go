package ikev2

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
)

func TestCheckStatesIsConsistent(t *testing.T) {
	require.NoError(t, CheckStates())
}

func TestStateStringKnown(t *testing.T) {
	assert.Equal(t, "ESTABLISHED_IKE_SA", ESTABLISHED_IKE_SA.String())
	assert.Equal(t, "State(250)", State(250).String())
}

func TestMatchTransitionInitiatorFlow(t *testing.T) {
	present := []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce}
	tr, ok := MatchTransition(IKE_SA_INIT_I0, ExchangeIkeSaInit, RoleNone, present, nil)
	require.True(t, ok)
	assert.Equal(t, IKE_SA_INIT_I, tr.To)
}

func TestMatchTransitionRejectsMissingPayload(t *testing.T) {
	present := []protocol.PayloadType{protocol.PayloadTypeSA}
	_, ok := MatchTransition(IKE_SA_INIT_I0, ExchangeIkeSaInit, RoleNone, present, nil)
	assert.False(t, ok, "expected no match with missing KE/Nonce")
}

func TestMatchTransitionRejectsUnexpectedPayload(t *testing.T) {
	present := []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce, protocol.PayloadTypeAUTH}
	_, ok := MatchTransition(IKE_SA_INIT_I0, ExchangeIkeSaInit, RoleNone, present, nil)
	assert.False(t, ok, "expected no match with unexpected AUTH payload")
}

// TestMatchTransitionCreateChildSaDisambiguation covers §4.5's mandatory
// CREATE_CHILD_SA disambiguation (testable scenario S4, "Rekey Child SA"):
// new-Child, rekey-Child and rekey-IKE all arrive as the same exchange type
// from the same ESTABLISHED_IKE_SA state and must be told apart by payload
// shape and the N(REKEY_SA) notification alone.
func TestMatchTransitionCreateChildSaDisambiguation(t *testing.T) {
	tsPresent := []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr}
	noTS := []protocol.PayloadType{protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeKE}

	tests := []struct {
		name    string
		present []protocol.PayloadType
		notifs  []protocol.NotificationType
		wantTo  State
	}{
		{"new child, no REKEY_SA", tsPresent, nil, NEW_CHILD_R0},
		{"rekey child, REKEY_SA present", tsPresent, []protocol.NotificationType{protocol.REKEY_SA}, REKEY_CHILD_R0},
		{"rekey IKE, no TS payloads", noTS, nil, REKEY_IKE_R0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := MatchTransition(ESTABLISHED_IKE_SA, ExchangeCreateChildSa, RoleRequest, tt.present, tt.notifs)
			require.True(t, ok, "expected a match")
			if diff := cmp.Diff(tt.wantTo, tr.To); diff != "" {
				t.Fatalf("unexpected target state (-want +got):\n%s", diff)
			}
		})
	}
}
