package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const (
	// ipUDPOverhead is the IPv4 header plus UDP header, subtracted from the
	// configured packet size to get the probe payload length.
	ipUDPOverhead = 28
	// basePort is the starting port for the probe source port.
	basePort = 30000
	// portRange is the range of ports to pick a random source port from.
	portRange = 10000
	// oobBufSize is the size of the out-of-band buffer for extended errors.
	oobBufSize = 512
	// dataBufSize is the size of the data buffer for received messages.
	dataBufSize = 64
	// minExtendedErrSize is the size of the sock_extended_err structure.
	minExtendedErrSize = 16
	// icmpUnreachablePort is the Destination Unreachable code for "Port Unreachable".
	icmpUnreachablePort = 3
)

// udpProber sends one UDP datagram per probe with the TTL set on the socket
// and reads the resulting ICMP error from the kernel error queue
// (IP_RECVERR), so no raw socket or elevated privilege is needed. The source
// port is fixed per prober, keeping every probe on a single flow.
type udpProber struct {
	target  netip.Addr
	cfg     Config
	srcPort int
	payload []byte
}

func newUDPProber(target netip.Addr, cfg Config) *udpProber {
	payloadLen := cfg.PacketSize - ipUDPOverhead
	if payloadLen < 0 {
		payloadLen = 0
	}
	return &udpProber{
		target:  target,
		cfg:     cfg,
		srcPort: rand.Intn(portRange) + basePort, // #nosec G404 // not used for crypto
		payload: make([]byte, payloadLen),
	}
}

func (p *udpProber) probe(ctx context.Context, ttl int) (reply, error) {
	conn, err := p.dial(ctx, ttl)
	if err != nil {
		return reply{}, fmt.Errorf("dialing probe socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	start := time.Now()
	if _, err := conn.Write(p.payload); err != nil {
		return reply{}, fmt.Errorf("sending probe: %w", err)
	}

	rep, err := readICMPError(conn, start.Add(p.cfg.Timeout))
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return reply{timeout: true}, nil
	case err != nil:
		return reply{}, err
	default:
		rep.rtt = time.Since(start)
		return rep, nil
	}
}

func (p *udpProber) dial(ctx context.Context, ttl int) (net.Conn, error) {
	dialer := net.Dialer{
		LocalAddr: &net.UDPAddr{Port: p.srcPort},
		Timeout:   p.cfg.Timeout,
		ControlContext: func(_ context.Context, _, _ string, c syscall.RawConn) error {
			var opErr error
			if err := c.Control(func(fd uintptr) {
				opErr = errors.Join(
					unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TTL, ttl),
					unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_RECVERR, 1),
					unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, p.cfg.TOS),
				)
			}); err != nil {
				return err
			}
			return opErr
		},
	}

	dest := net.JoinHostPort(p.target.String(), fmt.Sprintf("%d", p.cfg.Port))
	return dialer.DialContext(ctx, "udp4", dest)
}

// readICMPError drains one extended error from the socket error queue and
// maps it to a reply. The deadline is enforced by the runtime poller; a probe
// that draws no ICMP response surfaces as os.ErrDeadlineExceeded.
func readICMPError(conn net.Conn, deadline time.Time) (reply, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return reply{}, fmt.Errorf("connection does not implement syscall.Conn: %T", conn)
	}
	rawConn, err := sc.SyscallConn()
	if err != nil {
		return reply{}, fmt.Errorf("getting raw connection: %w", err)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return reply{}, fmt.Errorf("setting read deadline: %w", err)
	}

	var rep reply
	var opErr error
	rerr := rawConn.Read(func(fd uintptr) bool {
		dataBuf := make([]byte, dataBufSize)
		oobBuf := make([]byte, oobBufSize)
		_, oobn, _, _, err := unix.Recvmsg(int(fd), dataBuf, oobBuf, unix.MSG_ERRQUEUE)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			// Nothing queued yet; let the poller wait for the socket.
			return false
		}
		if err != nil {
			opErr = fmt.Errorf("receiving from error queue: %w", err)
			return true
		}
		rep, opErr = parseExtendedErr(oobBuf[:oobn])
		return true
	})
	if rerr != nil {
		return reply{}, rerr
	}
	return rep, opErr
}

// parseExtendedErr decodes a SOL_IP/IP_RECVERR control message into a reply.
// The offending router's address follows the sock_extended_err structure
// (SO_EE_OFFENDER) as a sockaddr_in.
func parseExtendedErr(oob []byte) (reply, error) {
	cms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return reply{}, fmt.Errorf("parsing control messages: %w", err)
	}

	for _, cm := range cms {
		if cm.Header.Level != unix.SOL_IP || cm.Header.Type != unix.IP_RECVERR {
			continue
		}
		if len(cm.Data) < minExtendedErrSize {
			return reply{}, fmt.Errorf("extended error too short: %d bytes", len(cm.Data))
		}

		icmpType := cm.Data[5]
		icmpCode := cm.Data[6]
		timeExceeded := icmpType == uint8(ipv4.ICMPTypeTimeExceeded)
		destUnreachable := icmpType == uint8(ipv4.ICMPTypeDestinationUnreachable)
		if !timeExceeded && !destUnreachable {
			return reply{}, fmt.Errorf("unexpected ICMP type %d with code %d", icmpType, icmpCode)
		}

		from, ok := offenderAddr(cm.Data[minExtendedErrSize:])
		if !ok {
			return reply{}, errors.New("no offender address in extended error")
		}
		return reply{
			from:    from,
			reached: destUnreachable && icmpCode == icmpUnreachablePort,
		}, nil
	}

	return reply{}, errors.New("no SOL_IP/IP_RECVERR message found")
}

func offenderAddr(data []byte) (netip.Addr, bool) {
	// sockaddr_in: 2 bytes family, 2 bytes port, 4 bytes address.
	if len(data) < 8 {
		return netip.Addr{}, false
	}
	if binary.NativeEndian.Uint16(data[0:2]) != unix.AF_INET {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte(data[4:8])), true
}
