// SPDX-License-Identifier: MIT

package network

import "context"

// Delegate receives the asynchronous notifications of one request leg.
// For a single loader the calls arrive strictly in transport order: zero
// or more OnReceivedRedirect, at most one OnReceivedResponse, then exactly
// one OnComplete (unless the loader is canceled first).
type Delegate interface {
	OnReceivedRedirect(info RedirectInfo, head *ResponseHead)
	OnReceivedResponse(head *ResponseHead)
	OnComplete(status Status)
}

// Loader drives one network leg, possibly spanning several same-origin
// redirect hops. After a redirect is surfaced the loader pauses until
// FollowRedirect is called; cross-origin hops are instead handled by the
// CORS layer creating a fresh loader.
type Loader interface {
	Start(ctx context.Context, req *Request, delegate Delegate)

	// FollowRedirect resumes a paused loader with the rewritten request
	// for the next hop.
	FollowRedirect(req *Request)

	// Cancel aborts the in-flight leg. No further delegate calls are made
	// after Cancel returns.
	Cancel()
}

// Factory mints loaders. The CORS layer creates one loader per chain of
// same-origin hops and a new one at each cross-origin boundary.
type Factory interface {
	CreateLoader() Loader
}
