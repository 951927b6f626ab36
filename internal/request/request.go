package request

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/benvon/crm-tools/internal/security"
)

type contextKey string

const (
	requestIDContextKey contextKey = "request_id"
	clientKeyContextKey contextKey = "client_key"
)

// ClientIDHeader lets callers behind a trusted proxy identify themselves for per-client
// rate limiting.
const ClientIDHeader = "X-Client-ID"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
// The headers are caller controlled; only use it for requests from a trusted proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// PeerIP returns the address of the direct peer without its port.
func PeerIP(r *http.Request) string {
	return stripPort(r.RemoteAddr)
}

// KeyResolver derives rate-limit client keys. Forwarding headers and X-Client-ID are
// honoured only when the direct peer is inside one of the trusted proxy prefixes;
// everyone else is keyed by peer address.
type KeyResolver struct {
	trusted []netip.Prefix
}

// NewKeyResolver parses trusted proxy CIDRs. Bare addresses are treated as single hosts.
func NewKeyResolver(trustedProxies []string) (*KeyResolver, error) {
	k := &KeyResolver{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			k.trusted = append(k.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		k.trusted = append(k.trusted, prefix.Masked())
	}
	return k, nil
}

// Trusted reports whether the direct peer of r is a trusted proxy.
func (k *KeyResolver) Trusted(r *http.Request) bool {
	if k == nil || len(k.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(PeerIP(r))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range k.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Key returns the rate-limit key for r.
func (k *KeyResolver) Key(r *http.Request) string {
	if !k.Trusted(r) {
		return "ip:" + PeerIP(r)
	}
	if id := r.Header.Get(ClientIDHeader); id != "" {
		if key, err := security.ValidateIdentifier("client_id", id); err == nil {
			return "client:" + key
		}
	}
	return "ip:" + stripPort(ClientIP(r))
}

// WithClientKey returns a context carrying the resolved client key.
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyContextKey, key)
}

// ClientKey returns the key used for per-client rate limiting. It is the key resolved
// by the client key middleware, or the peer address when none was resolved.
func ClientKey(r *http.Request) string {
	if key, ok := r.Context().Value(clientKeyContextKey).(string); ok && key != "" {
		return key
	}
	return "ip:" + PeerIP(r)
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestID returns the request id from ctx, or "" if none was set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
