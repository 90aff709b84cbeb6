// Package geo resolves client IP addresses to coarse locations and turns
// raw addresses into opaque tokens before they are stored.
package geo

import (
	"context"
	"net/netip"
)

// Location is the result of a lookup. Every field is optional.
type Location struct {
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
	City     string `json:"city,omitempty"`
	Org      string `json:"org,omitempty"`
	Postal   string `json:"postal,omitempty"`
	Loc      string `json:"loc,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// IsZero reports whether no field is set.
func (l Location) IsZero() bool {
	return l == Location{}
}

// Lookup resolves an IP address. Implementations never fail: any problem
// yields an empty Location.
type Lookup interface {
	Lookup(ctx context.Context, ip string) Location
}

// Nop is a Lookup that knows nothing.
type Nop struct{}

func (Nop) Lookup(context.Context, string) Location { return Location{} }

// Routable reports whether ip is a public address worth looking up.
// Invalid, loopback, private, link-local and unspecified addresses are not.
func Routable(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return !(addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast())
}
