package security

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"go4.org/netipx"
)

// Identity is who a request is accounted to.
type Identity struct {
	IP     string
	UserID uint
}

// Key is the rate-limit and accounting key: the account for authenticated callers, the IP otherwise.
func (i Identity) Key() string {
	if i.UserID != 0 {
		return "user:" + strconv.FormatUint(uint64(i.UserID), 10)
	}
	return "ip:" + i.IP
}

// IdentityResolver extracts the client IP from a request.
//
// Without trusted proxies it takes the first X-Forwarded-For entry verbatim, which any client
// can spoof. With trusted proxies configured the header is only honoured when the peer is a
// trusted proxy, and the client is the right-most entry that is not itself a trusted proxy.
type IdentityResolver struct {
	trusted *netipx.IPSet
}

// NewIdentityResolver accepts proxies as single addresses or CIDR prefixes.
func NewIdentityResolver(trustedProxies []string) (*IdentityResolver, error) {
	if len(trustedProxies) == 0 {
		return &IdentityResolver{}, nil
	}
	var b netipx.IPSetBuilder
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			b.AddPrefix(prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		b.Add(addr.Unmap())
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, err
	}
	return &IdentityResolver{trusted: set}, nil
}

// ClientIP resolves the client address from the transport peer and the X-Forwarded-For value.
// The result is not validated; callers must tolerate malformed values.
func (r *IdentityResolver) ClientIP(remoteAddr, forwardedFor string) string {
	peer := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		peer = host
	}
	if forwardedFor == "" {
		return peer
	}
	hops := strings.Split(forwardedFor, ",")

	if r == nil || r.trusted == nil {
		return strings.TrimSpace(hops[0])
	}
	if !r.isTrusted(peer) {
		return peer
	}
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !r.isTrusted(hop) {
			return hop
		}
	}
	return strings.TrimSpace(hops[0])
}

func (r *IdentityResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return r.trusted.Contains(addr.Unmap())
}
