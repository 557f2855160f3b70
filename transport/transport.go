// Package transport implements the UDP datagram emitter (C10): a single
// send(payload) that fragments oversized payloads into consecutive
// datagrams, and three construction modes (broadcast, multicast,
// unicast) that validate the destination address and configure the
// socket accordingly. Multicast group membership and outgoing TTL are
// set through golang.org/x/net/ipv4 and ipv6, grounded in the same
// library distr1-distri uses for that purpose; everything else is
// stdlib net.UDPConn, built fresh since the teacher carries no UDP code
// to adapt.
package transport

import (
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/Zoranner/pcapfile/pcap"
)

// MaxDatagram is the largest single UDP datagram this transport will
// emit; payloads above this size are fragmented into consecutive
// datagrams of at most this many bytes.
const MaxDatagram = 60000

// interChunkPause separates consecutive fragments of an oversized
// payload to reduce burst loss.
const interChunkPause = 1 * time.Millisecond

// multicastTTL is the outgoing TTL set on multicast sockets.
const multicastTTL = 64

// Mode selects how a Transport's destination is validated and how its
// socket is configured.
type Mode int

const (
	Unicast Mode = iota
	Broadcast
	Multicast
)

// Transport sends raw payloads to a fixed UDP destination, fragmenting
// as needed. Not safe for concurrent use by multiple goroutines calling
// Send simultaneously unless the caller serializes access.
type Transport struct {
	conn *net.UDPConn
	dest *net.UDPAddr
	mode Mode
}

// Dial parses address as an IP literal (host names are not resolved),
// validates it against mode, and opens a UDP socket configured
// accordingly.
func Dial(address string, port int, mode Mode) (*Transport, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, pcap.ErrInvalidArgument)
	}

	switch mode {
	case Broadcast:
		if !isIPv4Broadcast(ip) {
			return nil, fmt.Errorf("address %q is not a broadcast address: %w", address, pcap.ErrInvalidArgument)
		}
	case Multicast:
		if !ip.IsMulticast() {
			return nil, fmt.Errorf("address %q is not a multicast address: %w", address, pcap.ErrInvalidArgument)
		}
	case Unicast:
		if isIPv4Broadcast(ip) || ip.IsMulticast() {
			return nil, fmt.Errorf("address %q is not a unicast address: %w", address, pcap.ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("unknown transport mode %d: %w", mode, pcap.ErrInvalidArgument)
	}

	dest := &net.UDPAddr{IP: ip, Port: port}

	var laddr *net.UDPAddr
	network := "udp4"
	if ip.To4() == nil {
		network = "udp6"
	}

	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, fmt.Errorf("opening udp socket: %w", err)
	}

	t := &Transport{conn: conn, dest: dest, mode: mode}
	switch mode {
	case Multicast:
		if err := t.joinMulticast(ip); err != nil {
			conn.Close()
			return nil, err
		}
	case Broadcast:
		if err := enableBroadcast(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enabling broadcast on socket: %w", err)
		}
	}
	return t, nil
}

func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

func isIPv4Broadcast(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && v4[3] == 255
}

func (t *Transport) joinMulticast(ip net.IP) error {
	if v4 := ip.To4(); v4 != nil {
		p := ipv4.NewPacketConn(t.conn)
		if err := p.JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
			return fmt.Errorf("joining multicast group %s: %w", ip, err)
		}
		if err := p.SetMulticastTTL(multicastTTL); err != nil {
			return fmt.Errorf("setting multicast ttl: %w", err)
		}
		return nil
	}

	p := ipv6.NewPacketConn(t.conn)
	if err := p.JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
		return fmt.Errorf("joining multicast group %s: %w", ip, err)
	}
	if err := p.SetMulticastHopLimit(multicastTTL); err != nil {
		return fmt.Errorf("setting multicast hop limit: %w", err)
	}
	return nil
}

// Send emits payload as one datagram, or as consecutive MaxDatagram-byte
// fragments (last one smaller) separated by a 1ms pause if it exceeds
// MaxDatagram. No application-level framing is added. Returns the total
// number of bytes written.
func (t *Transport) Send(payload []byte) (int, error) {
	if len(payload) <= MaxDatagram {
		n, err := t.conn.WriteToUDP(payload, t.dest)
		if err != nil {
			return n, fmt.Errorf("sending to %s: %w", t.dest, err)
		}
		return n, nil
	}

	var sent int
	for i := 0; i < len(payload); i += MaxDatagram {
		end := i + MaxDatagram
		if end > len(payload) {
			end = len(payload)
		}
		n, err := t.conn.WriteToUDP(payload[i:end], t.dest)
		sent += n
		if err != nil {
			return sent, fmt.Errorf("sending fragment at offset %d to %s: %w", i, t.dest, err)
		}
		if end < len(payload) {
			time.Sleep(interChunkPause)
		}
	}
	return sent, nil
}

// Close releases the underlying socket. Idempotent.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
