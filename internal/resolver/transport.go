package resolver

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

type Transport interface {
	Exchange(ctx context.Context, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error)
}

// autoTransport queries over UDP and falls back to TCP on truncation.
type autoTransport struct {
	timeout time.Duration
}

func (t *autoTransport) Exchange(ctx context.Context, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	resp, rtt, err := t.exchange(ctx, "udp", server, msg)
	if err == nil && resp != nil && resp.Truncated {
		return t.exchange(ctx, "tcp", server, msg)
	}
	return resp, rtt, err
}

func (t *autoTransport) exchange(ctx context.Context, network, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	client := &dns.Client{Net: network, Timeout: t.timeout}
	if deadline, ok := ctx.Deadline(); ok {
		client.Timeout = time.Until(deadline)
	}
	return client.Exchange(msg, server)
}
