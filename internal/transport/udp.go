// Package transport is the UDP packet transport IKEv1 and IKEv2 sessions
// read/write over, adapted from egorse-ike's conn.go: source-address-aware
// packet connections for both IKE (port 500) and NAT-T (port 4500).
package transport

import (
	"io"
	"net"
	"os"
	"runtime"
	"syscall"

	"github.com/msgboxio/log"
	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Conn is a UDP socket that reports which local address a datagram
// arrived on, since a daemon listening on 0.0.0.0 still needs to answer
// from the address the peer actually reached.
type Conn interface {
	ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error)
	WritePacket(reply []byte, remoteAddr net.Addr) error
	LocalAddr() net.Addr
	Close() error
}

type pconnV4 ipv4.PacketConn

func (c *pconnV4) Close() error      { return c.Conn.Close() }
func (c *pconnV4) LocalAddr() net.Addr { return c.Conn.LocalAddr() }

type pconnV6 ipv6.PacketConn

func (c *pconnV6) Close() error      { return c.Conn.Close() }
func (c *pconnV6) LocalAddr() net.Addr { return c.Conn.LocalAddr() }

var ErrUDPOnly = errors.New("transport: only udp is supported")

// On Mac, dual stack bind for v4 addresses does not give us source IP addresses
func checkV4onX(address string) (bool, error) {
	if runtime.GOOS != "darwin" {
		return false, nil
	}
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return false, err
	}
	return addr.IP.To4() != nil, nil
}

// Listen opens a UDP socket with source-address reporting enabled.
func Listen(network, address string) (Conn, error) {
	isV4, err := checkV4onX(address)
	if err != nil {
		return nil, err
	}
	if isV4 {
		return listenUDP4(address)
	}
	switch network {
	case "udp4":
		return listenUDP4(address)
	case "udp6", "udp":
		return listenUDP6(address)
	}
	return nil, ErrUDPOnly
}

func listenUDP4(localString string) (*pconnV4, error) {
	udp, err := net.ListenPacket("udp4", localString)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	p := ipv4.NewPacketConn(udp)
	cf := ipv4.FlagTTL | ipv4.FlagSrc | ipv4.FlagDst | ipv4.FlagInterface
	if err := p.SetControlMessage(cf, true); err != nil {
		if protocolNotSupported(err) {
			log.Warningf("transport: udp source address detection not supported on %s", runtime.GOOS)
		} else {
			p.Close()
			return nil, err
		}
	}
	return (*pconnV4)(p), nil
}

func listenUDP6(localString string) (*pconnV6, error) {
	udp, err := net.ListenPacket("udp", localString)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	p := ipv6.NewPacketConn(udp)
	cf := ipv6.FlagSrc | ipv6.FlagDst | ipv6.FlagInterface
	if err := p.SetControlMessage(cf, true); err != nil {
		if protocolNotSupported(err) {
			log.Warningf("transport: udp source address detection not supported on %s", runtime.GOOS)
		} else {
			p.Close()
			return nil, err
		}
	}
	return (*pconnV6)(p), nil
}

func (p *pconnV4) ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error) {
	b = make([]byte, 3000)
	n, cm, remoteAddr, err := p.ReadFrom(b)
	if err == nil {
		b = b[:n]
		if cm != nil {
			localIP = cm.Dst
		}
	}
	return
}

func (p *pconnV6) ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error) {
	b = make([]byte, 3000)
	n, cm, remoteAddr, err := p.ReadFrom(b)
	if err == nil {
		b = b[:n]
		if cm != nil {
			localIP = cm.Dst
		}
	}
	return
}

func (p *pconnV4) WritePacket(reply []byte, remoteAddr net.Addr) error {
	n, err := p.WriteTo(reply, nil, remoteAddr)
	if err != nil {
		return err
	} else if n != len(reply) {
		return io.ErrShortWrite
	}
	return nil
}

func (p *pconnV6) WritePacket(reply []byte, remoteAddr net.Addr) error {
	n, err := p.WriteTo(reply, nil, remoteAddr)
	if err != nil {
		return err
	} else if n != len(reply) {
		return io.ErrShortWrite
	}
	return nil
}

// copied from golang.org/x/net/internal/nettest: detect a platform that
// rejects the IP_PKTINFO-style control message rather than treat it as a
// fatal error.
func protocolNotSupported(err error) bool {
	switch err := err.(type) {
	case syscall.Errno:
		return err == syscall.EPROTONOSUPPORT || err == syscall.ENOPROTOOPT
	case *os.SyscallError:
		if errno, ok := err.Err.(syscall.Errno); ok {
			return errno == syscall.EPROTONOSUPPORT || errno == syscall.ENOPROTOOPT
		}
	}
	return false
}
