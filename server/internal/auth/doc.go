// Package auth provides the gateway's optional token gate.
//
// Middleware(mode, header, key) wraps an http.Handler and validates a shared
// token taken from the named header or the "token" query parameter. The
// query parameter exists for browser clients, which cannot set headers on a
// WebSocket handshake.
//
// When mode != "token" or key == "", all requests pass through. This is the
// default: the gateway expects to sit behind an access-controlled path and
// only checks the token when an operator opts in.
package auth
