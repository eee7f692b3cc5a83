// Package gateway serves the approval console and request API over HTTP.
//
// # Authentication
//
// Privileged routes accept either credential, resolved in this order:
//
//   - Authorization: Bearer <access key> — the long-lived machine secret
//     held by the automated requester, verified against its salted hash.
//   - Session cookie — issued to the human operator after password login,
//     validated against the in-memory session manager.
//
// Requests carrying neither get a 401 with a WWW-Authenticate challenge.
// The gateway never learns plaintext secrets beyond the request lifetime;
// verification happens in the credentials package against stored digests.
//
// # Routes
//
//	GET  /health                       liveness probe (public)
//	GET  /login                        login form (public)
//	POST /login                        password login, issues a session
//	GET  /                             approval console (session required)
//	GET  /api/requests                 full ledger (privileged)
//	POST /api/requests/{id}/decision   record a decision (privileged)
//
// All responses disable caching and set headers against content-type
// sniffing, framing, and referrer leakage. When the connection was
// TLS-terminated upstream (X-Forwarded-Proto or CF-Visitor), responses add
// a strict-transport hint and session cookies are marked Secure.
package gateway
