package directory

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Discovery resolves a logical service name to candidate endpoints in preference order.
type Discovery interface {
	Resolve(ctx context.Context, service string) ([]string, error)
}

// StaticDiscovery returns a fixed endpoint list for every service.
type StaticDiscovery []string

// ParseStaticDiscovery splits a comma-separated endpoint list.
func ParseStaticDiscovery(s string) StaticDiscovery {
	var out StaticDiscovery
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (d StaticDiscovery) Resolve(context.Context, string) ([]string, error) {
	return append([]string(nil), d...), nil
}

// SRVLookup is the subset of *net.Resolver used by DNSDiscovery.
type SRVLookup interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// DNSDiscovery resolves _grpc._tcp.<service>.<domain> SRV records. Records come back
// sorted by priority and weight.
type DNSDiscovery struct {
	Domain   string
	Resolver SRVLookup
}

func (d DNSDiscovery) Resolve(ctx context.Context, service string) ([]string, error) {
	r := d.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	name := service
	if d.Domain != "" {
		name = service + "." + d.Domain
	}
	_, records, err := r.LookupSRV(ctx, "grpc", "tcp", name)
	if err != nil {
		return nil, fmt.Errorf("directory: resolve %s: %w", name, err)
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		host := strings.TrimSuffix(rec.Target, ".")
		out = append(out, net.JoinHostPort(host, strconv.Itoa(int(rec.Port))))
	}
	return out, nil
}
