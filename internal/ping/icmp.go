package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	echoData      = "pingtrain"
	maxPacketSize = 1500
)

// ICMPEngine sends ICMP echo requests over one long-lived socket per address
// family. Sockets are shared by every concurrent probe; a receive loop per
// socket hands replies to the waiting probe by wire sequence number.
type ICMPEngine struct {
	id         int
	privileged bool
	seq        uint32

	mu     sync.Mutex
	v4     *icmpConn
	v6     *icmpConn
	closed bool
}

// NewICMPEngine returns an engine using raw sockets when privileged is true
// and unprivileged datagram sockets otherwise.
func NewICMPEngine(privileged bool) *ICMPEngine {
	return &ICMPEngine{id: os.Getpid() & 0xffff, privileged: privileged}
}

// Prepare opens the socket for target's address family if needed.
func (e *ICMPEngine) Prepare(ctx context.Context, target net.IP) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.connFor(target)
	return err
}

// Probe sends one echo request and waits for the matching reply.
func (e *ICMPEngine) Probe(ctx context.Context, target net.IP, seq int, deadline time.Time) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if target == nil {
		return 0, fmt.Errorf("invalid target address")
	}

	c, err := e.connFor(target)
	if err != nil {
		return 0, err
	}

	wireSeq := int(atomic.AddUint32(&e.seq, 1) & 0xffff)
	replies := c.register(wireSeq)
	defer c.unregister(wireSeq)

	msg := icmp.Message{
		Type: c.requestType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   e.id,
			Seq:  wireSeq,
			Data: []byte(echoData),
		},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	wait := time.Until(deadline)
	if wait <= 0 {
		return 0, ErrTimeout
	}

	start := time.Now()
	if _, err := c.conn.WriteTo(payload, c.destination(target)); err != nil {
		return 0, fmt.Errorf("send echo request seq=%d: %w", seq, err)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case at := <-replies:
		rtt := at.Sub(start)
		if rtt < 0 {
			rtt = 0
		}
		return rtt, nil
	case <-timer.C:
		return 0, ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, fmt.Errorf("icmp receive loop stopped: %w", c.failure())
	}
}

// Close shuts both sockets. Probes in flight fail with ErrClosed.
func (e *ICMPEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for _, c := range []*icmpConn{e.v4, e.v6} {
		if c == nil {
			continue
		}
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.v4, e.v6 = nil, nil
	return errors.Join(errs...)
}

func (e *ICMPEngine) connFor(target net.IP) (*icmpConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	slot := &e.v6
	if isIPv4(target) {
		slot = &e.v4
	}
	if c := *slot; c != nil && !c.stopped() {
		return c, nil
	}

	network, protocol, requestType, replyType := icmpSettings(target, e.privileged)
	conn, err := icmp.ListenPacket(network, listenAddress(target))
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", network, err)
	}

	c := &icmpConn{
		conn:        conn,
		id:          e.id,
		protocol:    protocol,
		requestType: requestType,
		replyType:   replyType,
		datagram:    !e.privileged,
		waiters:     make(map[int]chan time.Time),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	*slot = c
	return c, nil
}

type icmpConn struct {
	conn        *icmp.PacketConn
	id          int
	protocol    int
	requestType icmp.Type
	replyType   icmp.Type
	datagram    bool

	mu      sync.Mutex
	waiters map[int]chan time.Time
	err     error
	done    chan struct{}
}

func (c *icmpConn) readLoop() {
	defer close(c.done)
	buf := make([]byte, maxPacketSize)
	for {
		n, peer, err := c.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		received := time.Now()
		if peer == nil {
			continue
		}

		reply, err := icmp.ParseMessage(c.protocol, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type != c.replyType {
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok {
			continue
		}
		// Datagram sockets have their identifier rewritten by the kernel.
		if !c.datagram && body.ID != c.id {
			continue
		}
		c.deliver(body.Seq, received)
	}
}

func (c *icmpConn) register(seq int) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waiters[seq] = ch
	c.mu.Unlock()
	return ch
}

func (c *icmpConn) unregister(seq int) {
	c.mu.Lock()
	delete(c.waiters, seq)
	c.mu.Unlock()
}

func (c *icmpConn) deliver(seq int, at time.Time) {
	c.mu.Lock()
	ch, ok := c.waiters[seq]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- at:
	default:
		// duplicate reply
	}
}

func (c *icmpConn) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *icmpConn) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil || errors.Is(c.err, net.ErrClosed) {
		return ErrClosed
	}
	return c.err
}

func (c *icmpConn) destination(ip net.IP) net.Addr {
	if c.datagram {
		return &net.UDPAddr{IP: ip}
	}
	return &net.IPAddr{IP: ip}
}

// ResolveIP resolves a host name or literal address to a single IP.
func ResolveIP(addr string) (net.IP, error) {
	ipAddr, err := net.ResolveIPAddr("ip", addr)
	if err != nil {
		return nil, err
	}
	if ipAddr.IP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", addr)
	}
	return ipAddr.IP, nil
}

func icmpSettings(ip net.IP, privileged bool) (network string, protocol int, requestType icmp.Type, replyType icmp.Type) {
	if isIPv4(ip) {
		network = "udp4"
		if privileged {
			network = "ip4:icmp"
		}
		return network, ipv4.ICMPTypeEcho.Protocol(), ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	}
	network = "udp6"
	if privileged {
		network = "ip6:ipv6-icmp"
	}
	return network, ipv6.ICMPTypeEchoRequest.Protocol(), ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
}

func listenAddress(ip net.IP) string {
	if isIPv4(ip) {
		return "0.0.0.0"
	}
	return "::"
}
