package netprobe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const resolvConfPath = "/etc/resolv.conf"

// Resolver maps an address back to a host name.
type Resolver interface {
	LookupPTR(ctx context.Context, ip string) (string, error)
}

// DNSResolver queries PTR records directly and falls back to the system
// resolver, which also consults the hosts file.
type DNSResolver struct {
	servers  []string
	client   *dns.Client
	fallback *net.Resolver
	timeout  time.Duration
}

// NewDNSResolver builds a resolver. An empty server uses the nameservers
// listed in /etc/resolv.conf; if that file is unusable only the system
// resolver is consulted.
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	r := &DNSResolver{
		client:   &dns.Client{Net: "udp", Timeout: timeout},
		fallback: net.DefaultResolver,
		timeout:  timeout,
	}

	if server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		r.servers = []string{server}
		return r
	}

	if conf, err := dns.ClientConfigFromFile(resolvConfPath); err == nil {
		for _, s := range conf.Servers {
			r.servers = append(r.servers, net.JoinHostPort(s, conf.Port))
		}
	}
	return r
}

// Servers returns the nameservers queried before the fallback.
func (r *DNSResolver) Servers() []string {
	return r.servers
}

// LookupPTR implements Resolver. The returned name has no trailing dot.
func (r *DNSResolver) LookupPTR(ctx context.Context, ip string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name, err := r.queryPTR(ctx, ip)
	if err == nil {
		return name, nil
	}

	names, fbErr := r.fallback.LookupAddr(ctx, ip)
	if fbErr != nil {
		return "", fmt.Errorf("reverse lookup of %s failed: %w", ip, fbErr)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no PTR record for %s", ip)
	}
	return strings.TrimSuffix(names[0], "."), nil
}

func (r *DNSResolver) queryPTR(ctx context.Context, ip string) (string, error) {
	if len(r.servers) == 0 {
		return "", fmt.Errorf("no nameservers configured")
	}

	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	lastErr := fmt.Errorf("no PTR record for %s", ip)
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s: %s", server, dns.RcodeToString[in.Rcode])
			continue
		}
		if name := firstPTR(in.Answer); name != "" {
			return name, nil
		}
	}
	return "", lastErr
}

func firstPTR(answers []dns.RR) string {
	for _, rr := range answers {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, ".")
		}
	}
	return ""
}
