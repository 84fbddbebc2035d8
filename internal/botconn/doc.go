// Package botconn manages live worker connections and message relay.
//
// # Lifecycle
//
// Every transport walks an explicit state machine:
//
//	Connecting -> Authorizing -> {Registered | Rejected} -> Disconnected
//
// Two wire protocols are negotiated from the handshake metadata:
//
//   - v1: the transport is accepted provisionally and must send a
//     "register" event carrying (id, secret) within the registration grace
//     period. On mismatch or timeout the worker is told "no_registration"
//     and the transport is closed.
//   - v2: (id, secret) arrive in the handshake itself and are validated
//     before the transport is accepted at all.
//
// # Manager
//
// The Manager owns the table of live connections, keyed by bot id. A newly
// registered connection always evicts any prior connection for the same
// bot id; at most one connection per bot id exists at any instant.
//
// # Reply correlation
//
// SendMessage arms a one-shot subscription for "message-<id>" before the
// message leaves, so a reply racing the send cannot be missed. The
// subscription is released by the matching reply or by the response
// timeout, whichever comes first, never both.
package botconn
