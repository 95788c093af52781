// SPDX-License-Identifier: MIT

// Package cors holds the protocol vocabulary and the pure checks of the
// cross-origin request pipeline: request modes, response tainting, the
// error taxonomy, and the header classification rules from the Fetch
// standard. Everything here is side-effect free; the stateful orchestration
// lives in internal/loader.
package cors

// RequestMode governs how a request relates to the cross-origin policy.
type RequestMode string

const (
	ModeSameOrigin              RequestMode = "same-origin"
	ModeNoCors                  RequestMode = "no-cors"
	ModeCors                    RequestMode = "cors"
	ModeCorsWithForcedPreflight RequestMode = "cors-with-forced-preflight"
	ModeNavigate                RequestMode = "navigate"
)

// IsCorsEnabled reports whether the mode subjects responses to the full
// CORS header verification.
func (m RequestMode) IsCorsEnabled() bool {
	return m == ModeCors || m == ModeCorsWithForcedPreflight
}

// CredentialsMode governs cookie and credential attachment.
type CredentialsMode string

const (
	CredentialsOmit       CredentialsMode = "omit"
	CredentialsSameOrigin CredentialsMode = "same-origin"
	CredentialsInclude    CredentialsMode = "include"
)

// RedirectMode governs what happens when the transport reports a redirect.
type RedirectMode string

const (
	RedirectFollow RedirectMode = "follow"
	RedirectError  RedirectMode = "error"
	RedirectManual RedirectMode = "manual"
)

// ResponseTainting classifies how much of a response the requester may
// observe.
type ResponseTainting string

const (
	TaintingBasic  ResponseTainting = "basic"
	TaintingCors   ResponseTainting = "cors"
	TaintingOpaque ResponseTainting = "opaque"
)

// IPAddressSpace is the network locality of an endpoint, ordered from most
// to least public. See the Private Network Access draft.
type IPAddressSpace string

const (
	AddressSpaceUnknown IPAddressSpace = "unknown"
	AddressSpacePublic  IPAddressSpace = "public"
	AddressSpacePrivate IPAddressSpace = "private"
	AddressSpaceLocal   IPAddressSpace = "local"
)

// IsKnown reports whether the space names a concrete locality. The zero
// value and AddressSpaceUnknown are equivalent: neither marks a request
// as a private network attempt.
func (s IPAddressSpace) IsKnown() bool {
	return s != "" && s != AddressSpaceUnknown
}

func addressSpaceRank(s IPAddressSpace) int {
	switch s {
	case AddressSpaceLocal:
		return 3
	case AddressSpacePrivate:
		return 2
	case AddressSpacePublic:
		return 1
	default:
		return 0
	}
}

// IsLessPublic reports whether s is a more private address space than
// other. A request from other into s is then a private network request.
func (s IPAddressSpace) IsLessPublic(other IPAddressSpace) bool {
	if !s.IsKnown() || !other.IsKnown() {
		return false
	}
	return addressSpaceRank(s) > addressSpaceRank(other)
}

// PrivateNetworkRequestPolicy decides how a private network request is
// treated once detected.
type PrivateNetworkRequestPolicy string

const (
	PrivateNetworkAllow          PrivateNetworkRequestPolicy = "allow"
	PrivateNetworkWarn           PrivateNetworkRequestPolicy = "warn"
	PrivateNetworkBlock          PrivateNetworkRequestPolicy = "block"
	PrivateNetworkPreflightWarn  PrivateNetworkRequestPolicy = "preflight-warn"
	PrivateNetworkPreflightBlock PrivateNetworkRequestPolicy = "preflight-block"
)

// IsWarningOnly reports whether a failed private-network preflight header
// check is downgraded to a diagnostic instead of failing the request.
func (p PrivateNetworkRequestPolicy) IsWarningOnly() bool {
	return p == PrivateNetworkWarn || p == PrivateNetworkPreflightWarn
}

// RequiresPreflight reports whether the policy forces a preflight once a
// private network request is detected.
func (p PrivateNetworkRequestPolicy) RequiresPreflight() bool {
	switch p {
	case PrivateNetworkPreflightWarn, PrivateNetworkPreflightBlock, PrivateNetworkWarn, PrivateNetworkBlock:
		return true
	default:
		return false
	}
}

// ClientSecurityState carries the requester-side context needed for the
// private network access decision.
type ClientSecurityState struct {
	PrivateNetworkRequestPolicy PrivateNetworkRequestPolicy `json:"private_network_request_policy" yaml:"private_network_request_policy"`
	ClientAddressSpace          IPAddressSpace              `json:"client_address_space" yaml:"client_address_space"`
	IsSecureContext             bool                        `json:"is_secure_context" yaml:"is_secure_context"`
}

// Policy returns the effective policy, defaulting to allow when no state
// was supplied.
func (s *ClientSecurityState) Policy() PrivateNetworkRequestPolicy {
	if s == nil || s.PrivateNetworkRequestPolicy == "" {
		return PrivateNetworkAllow
	}
	return s.PrivateNetworkRequestPolicy
}
