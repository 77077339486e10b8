// Package license implements the license validation engine for ScanPro.
// It decides whether premium capability is unlocked by periodically
// validating a license key against the remote authority while tolerating
// that authority being temporarily unreachable.
//
// # Architecture Overview
//
// The engine consists of several components:
//
//	- Manager: the license state machine; owns the stored record and
//	  every status transition
//	- AuthorityClient: HTTP requests to the license authority with
//	  bounded timeouts and an explicit failure taxonomy
//	- Grace controller: pure functions deciding whether a prior good
//	  validation is still trusted during connectivity failures
//	- ValidationCache: minutes-scale memoization of the last check
//	- Store: durable single-record persistence (signed file or SQLite)
//
// # Failure Classification
//
// Remote failures are classified two ways, because they drive different
// transitions:
//
//	1. Transient (unreachable, timeout, server error, malformed response):
//	   the authority's true answer is unknown. An entitled installation
//	   degrades to grace and keeps running for up to 48 hours.
//	2. Authoritative (a well-formed rejection payload): the authority
//	   explicitly denied entitlement. Features lock immediately; grace
//	   never protects against revocation.
//
// # Query Surface
//
// Feature gates call Manager.IsActive, which is cheap and safe to call many
// times per request: it reads the cached record and the derived grace
// computation only, never the network.
package license
