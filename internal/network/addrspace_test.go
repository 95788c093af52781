// SPDX-License-Identifier: MIT

package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

func TestAddressSpaceOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ip   string
		want cors.IPAddressSpace
	}{
		{"127.0.0.1", cors.AddressSpaceLocal},
		{"::1", cors.AddressSpaceLocal},
		{"10.1.2.3", cors.AddressSpacePrivate},
		{"172.16.0.1", cors.AddressSpacePrivate},
		{"172.32.0.1", cors.AddressSpacePublic},
		{"192.168.0.10", cors.AddressSpacePrivate},
		{"169.254.1.1", cors.AddressSpacePrivate},
		{"100.64.0.1", cors.AddressSpacePrivate},
		{"fc00::1", cors.AddressSpacePrivate},
		{"fe80::1", cors.AddressSpacePrivate},
		{"8.8.8.8", cors.AddressSpacePublic},
		{"2001:db8::1", cors.AddressSpacePublic},
		{"::ffff:192.168.1.1", cors.AddressSpacePrivate},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AddressSpaceOf(net.ParseIP(tt.ip)))
		})
	}
}

func TestAddressSpaceOfHostPort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, cors.AddressSpaceLocal, AddressSpaceOfHostPort("127.0.0.1:8080"))
	assert.Equal(t, cors.AddressSpacePrivate, AddressSpaceOfHostPort("[fe80::1]:443"))
	assert.Equal(t, cors.AddressSpacePublic, AddressSpaceOfHostPort("8.8.8.8:53"))
	assert.Equal(t, cors.AddressSpaceUnknown, AddressSpaceOfHostPort("not-an-ip:80"))
}
