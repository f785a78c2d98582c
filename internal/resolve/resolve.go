// Package resolve turns a user supplied server endpoint into a dialable
// address, following the game's _minecraft._tcp SRV records when no port is
// given.
package resolve

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/1ureka/smproxy/internal/util"
)

const (
	DefaultPort  = 25565
	srvService   = "_minecraft._tcp."
	resolvConf   = "/etc/resolv.conf"
	queryTimeout = 2 * time.Second
)

// fallbackServer is used when no resolver configuration can be read.
var fallbackServer = "8.8.8.8:53"

// Resolver looks up SRV records against a fixed list of DNS servers.
type Resolver struct {
	Servers []string

	client *dns.Client
}

// New returns a resolver using the system's DNS servers.
func New() *Resolver {
	var servers []string
	if cc, err := dns.ClientConfigFromFile(resolvConf); err == nil {
		for _, s := range cc.Servers {
			servers = append(servers, net.JoinHostPort(s, cc.Port))
		}
	}
	if len(servers) == 0 {
		servers = []string{fallbackServer}
	}
	return WithServers(servers...)
}

// WithServers returns a resolver querying the given "host:port" servers.
func WithServers(servers ...string) *Resolver {
	return &Resolver{
		Servers: servers,
		client:  &dns.Client{Net: "udp", Timeout: queryTimeout},
	}
}

// Resolve returns a "host:port" for endpoint. An explicit port is kept as
// is, a bare port means localhost, and a bare host is looked up via SRV and
// otherwise gets DefaultPort.
func (r *Resolver) Resolve(ctx context.Context, endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("resolve: empty endpoint")
	}

	if host, port, err := net.SplitHostPort(endpoint); err == nil {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return "", fmt.Errorf("resolve: bad port in %q", endpoint)
		}
		if host == "" {
			host = "127.0.0.1"
		}
		return net.JoinHostPort(host, port), nil
	}

	if port, err := strconv.ParseUint(endpoint, 10, 16); err == nil {
		return net.JoinHostPort("127.0.0.1", strconv.FormatUint(port, 10)), nil
	}

	if net.ParseIP(endpoint) != nil {
		return net.JoinHostPort(endpoint, strconv.Itoa(DefaultPort)), nil
	}

	target, port, err := r.LookupSRV(ctx, endpoint)
	if err != nil {
		util.LogDebug("SRV lookup for %s failed: %v", endpoint, err)
	}
	if target != "" {
		util.LogDebug("SRV %s -> %s:%d", endpoint, target, port)
		return net.JoinHostPort(target, strconv.Itoa(int(port))), nil
	}
	return net.JoinHostPort(endpoint, strconv.Itoa(DefaultPort)), nil
}

// LookupSRV queries _minecraft._tcp.host and returns the preferred target:
// lowest priority first, then highest weight. An empty target means there
// is no record.
func (r *Resolver) LookupSRV(ctx context.Context, host string) (string, uint16, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(srvService+host), dns.TypeSRV)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.Servers {
		in, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			return "", 0, nil
		}

		var records []*dns.SRV
		for _, ans := range in.Answer {
			if srv, ok := ans.(*dns.SRV); ok {
				records = append(records, srv)
			}
		}
		if len(records) == 0 {
			return "", 0, nil
		}
		slices.SortStableFunc(records, func(a, b *dns.SRV) int {
			if a.Priority != b.Priority {
				return int(a.Priority) - int(b.Priority)
			}
			return int(b.Weight) - int(a.Weight)
		})
		best := records[0]
		return strings.TrimSuffix(best.Target, "."), best.Port, nil
	}
	return "", 0, lastErr
}
