package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

const defaultResolver = "127.0.0.1:53"

// Resolver is a read-only DNS probe used by the resolve command and the
// discovery API surface.
type Resolver struct {
	// Server is the resolver address in host:port form.
	Server string
	// Timeout bounds one query exchange.
	Timeout time.Duration
}

func NewResolver(server string, timeout time.Duration) *Resolver {
	if server == "" {
		server = defaultResolver
	}
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &Resolver{Server: server, Timeout: timeout}
}

// Resolve queries A and AAAA records for host and returns the addresses as
// strings. A host with no records resolves to an empty slice, not an error.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]string, error) {
	client := &dns.Client{Timeout: r.Timeout}
	fqdn := dns.Fqdn(host)

	var addrs []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(fqdn, qtype)
		msg.RecursionDesired = true

		resp, _, err := client.ExchangeContext(ctx, msg, r.Server)
		if err != nil {
			return nil, fmt.Errorf("query %s for %s failed: %w", dns.TypeToString[qtype], host, err)
		}
		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			return nil, fmt.Errorf("query %s for %s returned %s", dns.TypeToString[qtype], host, dns.RcodeToString[resp.Rcode])
		}
		for _, rr := range resp.Answer {
			switch record := rr.(type) {
			case *dns.A:
				addrs = append(addrs, record.A.String())
			case *dns.AAAA:
				addrs = append(addrs, record.AAAA.String())
			}
		}
	}
	return addrs, nil
}
