// Package proposal implements §4.7: proposal negotiation (matching an
// ordered list of locally configured proposals against a peer's offered
// list) and the resulting cipher suite construction.
package proposal

import (
	"fmt"

	"github.com/PatrisiousHaddad/libreswan/internal/protocol"
)

// mandatoryTypes per protocol id: IKE needs ENCR+PRF+DH (INTEG only for
// non-AEAD encryption, checked separately), ESP/AH need ENCR or INTEG plus
// ESN.
func mandatoryTypes(protoID protocol.ProtocolId) []protocol.TransformType {
	switch protoID {
	case protocol.IKE:
		return []protocol.TransformType{protocol.TRANSFORM_TYPE_ENCR, protocol.TRANSFORM_TYPE_PRF, protocol.TRANSFORM_TYPE_DH}
	case protocol.ESP:
		return []protocol.TransformType{protocol.TRANSFORM_TYPE_ENCR, protocol.TRANSFORM_TYPE_ESN}
	case protocol.AH:
		return []protocol.TransformType{protocol.TRANSFORM_TYPE_INTEG, protocol.TRANSFORM_TYPE_ESN}
	default:
		return nil
	}
}

// transformsByType groups a proposal's transform list by type, since a
// proposal may legally offer more than one transform of a given type (e.g.
// two acceptable ENCR algorithms) for the peer to choose among.
func transformsByType(p *protocol.SaProposal) map[protocol.TransformType][]*protocol.SaTransform {
	out := make(map[protocol.TransformType][]*protocol.SaTransform)
	for _, tr := range p.Transforms {
		out[tr.Type] = append(out[tr.Type], tr)
	}
	return out
}

// hasMatch reports whether any transform in offered equals want.
func hasMatch(want *protocol.SaTransform, offered []*protocol.SaTransform) bool {
	for _, o := range offered {
		if want.IsEqual(o) {
			return true
		}
	}
	return false
}

// Chosen is the result of a successful negotiation: the accepted local
// proposal, the matching remote proposal it was checked against, and the
// single transform selected from each mandatory type (since a proposal may
// offer several candidates per type, only one is chosen per §4.7).
type Chosen struct {
	Local, Remote *protocol.SaProposal
	Transforms    map[protocol.TransformType]*protocol.SaTransform
}

// Negotiate applies §4.7's single-pass matching rule: walk the local
// proposal list in order (it is already sorted by preference), and for the
// first local proposal where every mandatory transform type has at least
// one match inside some remote proposal of the same protocol id and SPI
// size, that local proposal wins. Ties between multiple compatible remote
// proposals are broken by picking the first remote proposal encountered, so
// the whole rule is "first local proposal, first remote proposal, that
// together admit a match."
//
// This never attempts to find the "best" combination across the full
// cross product: one forward pass over local, one forward pass over remote
// per local candidate, matching the original single-pass matching
// discipline rather than a global optimization.
func Negotiate(local, remote []*protocol.SaProposal) (*Chosen, error) {
	for _, lp := range local {
		for _, rp := range remote {
			if lp.ProtocolId != rp.ProtocolId {
				continue
			}
			if len(lp.Spi) != 0 && len(rp.Spi) != 0 && len(lp.Spi) != len(rp.Spi) {
				continue
			}
			chosen, ok := matchProposal(lp, rp)
			if ok {
				return chosen, nil
			}
		}
	}
	return nil, protocol.ErrF(protocol.ERR_NO_PROPOSAL_CHOSEN, "no local proposal matched any offered proposal")
}

func matchProposal(local, remote *protocol.SaProposal) (*Chosen, bool) {
	remoteByType := transformsByType(remote)
	localByType := transformsByType(local)
	chosen := map[protocol.TransformType]*protocol.SaTransform{}
	for _, tt := range mandatoryTypes(local.ProtocolId) {
		lcands, ok := localByType[tt]
		if !ok {
			return nil, false
		}
		rcands, ok := remoteByType[tt]
		if !ok {
			return nil, false
		}
		var picked *protocol.SaTransform
		for _, lc := range lcands {
			if hasMatch(lc, rcands) {
				picked = lc
				break
			}
		}
		if picked == nil {
			return nil, false
		}
		chosen[tt] = picked
	}
	// INTEG is mandatory for IKE unless the chosen ENCR is an AEAD transform,
	// which folds integrity into the cipher itself.
	if local.ProtocolId == protocol.IKE && !isAEAD(chosen[protocol.TRANSFORM_TYPE_ENCR]) {
		lcands, lok := localByType[protocol.TRANSFORM_TYPE_INTEG]
		rcands, rok := remoteByType[protocol.TRANSFORM_TYPE_INTEG]
		if !lok || !rok {
			return nil, false
		}
		var picked *protocol.SaTransform
		for _, lc := range lcands {
			if hasMatch(lc, rcands) {
				picked = lc
				break
			}
		}
		if picked == nil {
			return nil, false
		}
		chosen[protocol.TRANSFORM_TYPE_INTEG] = picked
	}
	return &Chosen{Local: local, Remote: remote, Transforms: chosen}, true
}

func isAEAD(tr *protocol.SaTransform) bool {
	if tr == nil {
		return false
	}
	switch protocol.EncrTransformId(tr.TransformId) {
	case protocol.AEAD_AES_GCM_8, protocol.AEAD_AES_GCM_12, protocol.AEAD_AES_GCM_16,
		protocol.ENCR_NULL_AUTH_AES_GMAC:
		return true
	default:
		return false
	}
}

// AsProposal renders a Chosen selection back into the single-transform,
// single-proposal form that belongs in a response message: one SaProposal
// naming exactly the negotiated transforms and a freshly assigned SPI.
func (c *Chosen) AsProposal(spi []byte) *protocol.SaProposal {
	out := &protocol.SaProposal{
		IsLast:     true,
		Number:     c.Local.Number,
		ProtocolId: c.Local.ProtocolId,
		Spi:        spi,
	}
	for _, tt := range orderedTypes() {
		if tr, ok := c.Transforms[tt]; ok {
			out.Transforms = append(out.Transforms, tr)
		}
	}
	if n := len(out.Transforms); n > 0 {
		out.Transforms[n-1].IsLast = true
	}
	return out
}

func orderedTypes() []protocol.TransformType {
	return []protocol.TransformType{
		protocol.TRANSFORM_TYPE_ENCR,
		protocol.TRANSFORM_TYPE_PRF,
		protocol.TRANSFORM_TYPE_INTEG,
		protocol.TRANSFORM_TYPE_DH,
		protocol.TRANSFORM_TYPE_ESN,
	}
}

func (c *Chosen) String() string {
	return fmt.Sprintf("proposal#%d(%s)", c.Local.Number, c.Local.ProtocolId)
}
