package admin

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
)

// frame is the wire envelope for one admin-socket message: a 4-byte
// big-endian length prefix followed by a gob-encoded payload, the same
// "locked command transport, separate event transport" split vici's
// Session keeps between ctr and el, generalized from vici's TLV framing
// to gob since this module has no reason to hand-roll a second wire
// format alongside the IKE one internal/ikev1/wire and internal/protocol
// already implement.
const maxFrameLen = 1 << 20 // 1 MiB, generous for a status dump

func writeFrame(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("admin: encode: %w", err)
	}
	if buf.Len() > maxFrameLen {
		return fmt.Errorf("admin: frame too large (%d bytes)", buf.Len())
	}
	var lenHdr [4]byte
	binary.BigEndian.PutUint32(lenHdr[:], uint32(buf.Len()))
	if _, err := w.Write(lenHdr[:]); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func readFrame(r io.Reader, v interface{}) error {
	var lenHdr [4]byte
	if _, err := io.ReadFull(r, lenHdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenHdr[:])
	if n > maxFrameLen {
		return fmt.Errorf("admin: frame too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(buf)).Decode(v)
}

// frameConn wraps a net.Conn with the framed Request/Response/Event codec.
type frameConn struct {
	net.Conn
}

func newFrameConn(c net.Conn) *frameConn { return &frameConn{Conn: c} }

func (f *frameConn) sendRequest(req Request) error  { return writeFrame(f.Conn, req) }
func (f *frameConn) recvResponse() (Response, error) {
	var resp Response
	err := readFrame(f.Conn, &resp)
	return resp, err
}
func (f *frameConn) sendResponse(resp Response) error { return writeFrame(f.Conn, resp) }
func (f *frameConn) recvRequest() (Request, error) {
	var req Request
	err := readFrame(f.Conn, &req)
	return req, err
}
func (f *frameConn) sendEvent(ev Event) error { return writeFrame(f.Conn, ev) }
func (f *frameConn) recvEvent() (Event, error) {
	var ev Event
	err := readFrame(f.Conn, &ev)
	return ev, err
}
