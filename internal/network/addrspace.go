// SPDX-License-Identifier: MIT

package network

import (
	"net"
	"net/netip"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
}

var privateV6 = []netip.Prefix{
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// AddressSpaceOf classifies an IP into the Private Network Access address
// spaces: loopback is local, RFC 1918 and friends are private, everything
// else is public.
func AddressSpaceOf(ip net.IP) cors.IPAddressSpace {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return cors.AddressSpaceUnknown
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return cors.AddressSpaceLocal
	}
	prefixes := privateV6
	if addr.Is4() {
		prefixes = privateV4
	}
	for _, p := range prefixes {
		if p.Contains(addr) {
			return cors.AddressSpacePrivate
		}
	}
	return cors.AddressSpacePublic
}

// AddressSpaceOfHostPort classifies the host part of a dialed address.
// Unresolvable hosts report unknown.
func AddressSpaceOfHostPort(addr string) cors.IPAddressSpace {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return cors.AddressSpaceUnknown
	}
	return AddressSpaceOf(ip)
}
