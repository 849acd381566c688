package resolver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func aRecord(name string, ip string) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
		A:   net.ParseIP(ip),
	}
}

func TestLookupPreservesAnswerOrder(t *testing.T) {
	transport := &MockTransport{Responder: func(server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		resp := new(dns.Msg)
		resp.SetReply(msg)
		name := msg.Question[0].Name
		resp.Answer = []dns.RR{aRecord(name, "203.0.113.10"), aRecord(name, "203.0.113.20")}
		return resp, 5 * time.Millisecond, nil
	}}

	r := NewWithTransport(Options{Servers: []string{"1.1.1.1"}}, transport)
	addrs, err := r.Lookup(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(addrs) != 2 || addrs[0].String() != "203.0.113.10" || addrs[1].String() != "203.0.113.20" {
		t.Fatalf("unexpected addrs: %v", addrs)
	}
}

func TestLookupFallsThroughFailedResolver(t *testing.T) {
	transport := &MockTransport{Responder: func(server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		if server == "1.1.1.1:53" {
			return nil, 0, errors.New("timeout")
		}
		resp := new(dns.Msg)
		resp.SetReply(msg)
		resp.Answer = []dns.RR{aRecord(msg.Question[0].Name, "192.0.2.1")}
		return resp, time.Millisecond, nil
	}}

	r := NewWithTransport(Options{Servers: []string{"1.1.1.1", "8.8.8.8"}}, transport)
	addrs, err := r.Lookup(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(addrs) != 1 || addrs[0].String() != "192.0.2.1" {
		t.Fatalf("unexpected addrs: %v", addrs)
	}
}

func TestLookupNXDomainYieldsNoAddressesAndNoError(t *testing.T) {
	transport := &MockTransport{Responder: func(server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		resp := new(dns.Msg)
		resp.SetReply(msg)
		resp.Rcode = dns.RcodeNameError
		return resp, time.Millisecond, nil
	}}

	r := NewWithTransport(Options{Servers: []string{"1.1.1.1"}}, transport)
	addrs, err := r.Lookup(context.Background(), "does-not-exist.invalid")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(addrs) != 0 {
		t.Fatalf("expected no addrs, got %v", addrs)
	}
}

func TestLookupAllResolversFailed(t *testing.T) {
	transport := &MockTransport{Responder: func(server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		return nil, 0, errors.New("network unreachable")
	}}

	r := NewWithTransport(Options{Servers: []string{"1.1.1.1", "8.8.8.8"}}, transport)
	if _, err := r.Lookup(context.Background(), "example.com"); err == nil {
		t.Fatalf("expected error when every resolver fails")
	}
}

func TestReverseLookupReturnsPTR(t *testing.T) {
	transport := &MockTransport{Responder: func(server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		if msg.Question[0].Qtype != dns.TypePTR {
			t.Fatalf("expected PTR question, got %d", msg.Question[0].Qtype)
		}
		resp := new(dns.Msg)
		resp.SetReply(msg)
		resp.Answer = []dns.RR{&dns.PTR{
			Hdr: dns.RR_Header{Name: msg.Question[0].Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
			Ptr: "router.example.net.",
		}}
		return resp, time.Millisecond, nil
	}}

	r := NewWithTransport(Options{Servers: []string{"1.1.1.1"}}, transport)
	host := r.ReverseLookup(context.Background(), netip.MustParseAddr("192.0.2.1"))
	if host != "router.example.net" {
		t.Fatalf("unexpected host: %s", host)
	}
}

func TestReverseLookupFallsBackToAddress(t *testing.T) {
	transport := &MockTransport{Responder: func(server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		resp := new(dns.Msg)
		resp.SetReply(msg)
		resp.Rcode = dns.RcodeNameError
		return resp, time.Millisecond, nil
	}}

	r := NewWithTransport(Options{Servers: []string{"1.1.1.1"}}, transport)
	host := r.ReverseLookup(context.Background(), netip.MustParseAddr("192.0.2.7"))
	if host != "192.0.2.7" {
		t.Fatalf("expected address fallback, got %s", host)
	}
}

func TestLoadResolversFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	content := "# test\nnameserver 1.1.1.1\nnameserver 8.8.8.8\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	resolvers, err := loadResolvers(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(resolvers) != 2 || resolvers[0] != "1.1.1.1" || resolvers[1] != "8.8.8.8" {
		t.Fatalf("unexpected resolvers: %#v", resolvers)
	}
}

func TestNormalizeServer(t *testing.T) {
	cases := map[string]string{
		"1.1.1.1":        "1.1.1.1:53",
		"1.1.1.1:5353":   "1.1.1.1:5353",
		"2606:4700::1":   "[2606:4700::1]:53",
		"[2606:4700::1]": "[2606:4700::1]:53",
	}
	for in, want := range cases {
		if got := NormalizeServer(in); got != want {
			t.Fatalf("NormalizeServer(%q) = %q, want %q", in, got, want)
		}
	}
}
