package protocol

import "github.com/msgboxio/packets"

// SkfPayload is one Encrypted Fragment payload (RFC 7383 §3): the SK
// payload's content split across several IKE messages so that replies fit
// a path's MTU or an accepted max-datagram size.
type SkfPayload struct {
	*PayloadHeader
	FragmentNumber uint16
	TotalFragments uint16
	Data           []byte
}

const MIN_LEN_SKF = 4

func (s *SkfPayload) Type() PayloadType { return PayloadTypeSKF }

func (s *SkfPayload) Encode() (b []byte) {
	b = make([]byte, MIN_LEN_SKF)
	packets.WriteB16(b, 0, s.FragmentNumber)
	packets.WriteB16(b, 2, s.TotalFragments)
	return append(b, s.Data...)
}

func (s *SkfPayload) Decode(b []byte) (err error) {
	if len(b) < MIN_LEN_SKF {
		return ErrF(ERR_INVALID_SYNTAX, "skf payload too short")
	}
	s.FragmentNumber, _ = packets.ReadB16(b, 0)
	s.TotalFragments, _ = packets.ReadB16(b, 2)
	if s.FragmentNumber == 0 || s.FragmentNumber > s.TotalFragments {
		return ErrF(ERR_INVALID_SYNTAX, "fragment number %d out of range of %d total", s.FragmentNumber, s.TotalFragments)
	}
	s.Data = append([]byte{}, b[MIN_LEN_SKF:]...)
	return
}

// Fragmenter splits ciphertext (the SK payload's already-encrypted content)
// into ordered chunks no larger than maxFragmentLen, numbering them 1..N per
// RFC 7383. A message under the threshold is returned as a single fragment.
func Fragmenter(ciphertext []byte, maxFragmentLen int) []*SkfPayload {
	if maxFragmentLen <= 0 || len(ciphertext) <= maxFragmentLen {
		return []*SkfPayload{{PayloadHeader: &PayloadHeader{}, FragmentNumber: 1, TotalFragments: 1, Data: ciphertext}}
	}
	total := (len(ciphertext) + maxFragmentLen - 1) / maxFragmentLen
	frags := make([]*SkfPayload, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxFragmentLen
		end := start + maxFragmentLen
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		frags = append(frags, &SkfPayload{
			PayloadHeader:  &PayloadHeader{},
			FragmentNumber: uint16(i + 1),
			TotalFragments: uint16(total),
			Data:           append([]byte{}, ciphertext[start:end]...),
		})
	}
	return frags
}

// Reassemble concatenates a complete, ordered set of fragments back into the
// ciphertext they were split from. Callers are responsible for collecting
// TotalFragments distinct FragmentNumber values (1..N) before calling this;
// a short or duplicate set is a protocol error the caller must detect first.
func Reassemble(frags []*SkfPayload) []byte {
	if len(frags) == 0 {
		return nil
	}
	ordered := make([][]byte, frags[0].TotalFragments)
	for _, f := range frags {
		ordered[f.FragmentNumber-1] = f.Data
	}
	var out []byte
	for _, chunk := range ordered {
		out = append(out, chunk...)
	}
	return out
}
