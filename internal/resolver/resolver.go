package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

type Options struct {
	// Servers are the recursive resolvers to query, in order. When empty the
	// system chain from /etc/resolv.conf is used, padded with public resolvers.
	Servers []string
	Timeout time.Duration
	Retries int
	Logger  *zap.Logger
}

// Resolver answers forward (hostname -> addresses) and reverse
// (address -> hostname) questions over plain DNS.
type Resolver struct {
	opts      Options
	transport Transport
}

func New(opts Options) (*Resolver, error) {
	if len(opts.Servers) == 0 {
		servers, err := DefaultResolverChain()
		if err != nil {
			return nil, fmt.Errorf("loading system resolvers: %w", err)
		}
		opts.Servers = servers
	}
	return NewWithTransport(opts, &autoTransport{timeout: opts.Timeout}), nil
}

func NewWithTransport(opts Options, transport Transport) *Resolver {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Retries == 0 {
		opts.Retries = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Resolver{opts: opts, transport: transport}
}

// Lookup resolves hostname to its IPv4 addresses, preserving the order the
// resolver returned them. A clean NXDOMAIN or empty answer yields an empty
// slice and no error; an error is returned only when every configured
// resolver failed to respond.
func (r *Resolver) Lookup(ctx context.Context, hostname string) ([]netip.Addr, error) {
	msg := &dns.Msg{}
	msg.SetQuestion(dns.Fqdn(hostname), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.opts.Servers {
		server = NormalizeServer(server)
		resp, rtt, err := r.exchange(ctx, server, msg)
		if err != nil {
			r.opts.Logger.Debug("resolver failed",
				zap.String("server", server),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		r.opts.Logger.Debug("resolver answered",
			zap.String("server", server),
			zap.String("rcode", dns.RcodeToString[resp.Rcode]),
			zap.Duration("rtt", rtt),
		)
		return addrsFromAnswer(resp), nil
	}

	if lastErr == nil {
		lastErr = errors.New("no resolvers configured")
	}
	return nil, fmt.Errorf("lookup %s: %w", hostname, lastErr)
}

// ReverseLookup resolves addr to a hostname via PTR. It never fails
// observably: on any miss it falls back to the textual address.
func (r *Resolver) ReverseLookup(ctx context.Context, addr netip.Addr) string {
	reverse, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return addr.String()
	}

	msg := &dns.Msg{}
	msg.SetQuestion(reverse, dns.TypePTR)
	msg.RecursionDesired = true

	for _, server := range r.opts.Servers {
		resp, _, err := r.exchange(ctx, NormalizeServer(server), msg)
		if err != nil {
			continue
		}
		for _, rr := range resp.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, ".")
			}
		}
		// Answered without a PTR record; no point asking the next server.
		break
	}
	return addr.String()
}

func (r *Resolver) exchange(ctx context.Context, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	var lastErr error
	for i := 0; i < r.opts.Retries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		resp, rtt, err := r.transport.Exchange(ctx, server, msg.Copy())
		if err == nil {
			return resp, rtt, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("dns exchange failed")
	}
	return nil, 0, lastErr
}

func addrsFromAnswer(resp *dns.Msg) []netip.Addr {
	addrs := []netip.Addr{}
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

func NormalizeServer(server string) string {
	if server == "" {
		return server
	}
	if strings.HasPrefix(server, "[") {
		if strings.Contains(server, "]:") {
			return server
		}
		return server + ":53"
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	if strings.Contains(server, ":") {
		return "[" + server + "]:53"
	}
	return server + ":53"
}
