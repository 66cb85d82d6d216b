// Package kvmessage defines the request/response values exchanged between
// clients, the leader, and followers, along with the closed set of error
// kinds the system can surface.
//
// Request and response types are typed Go values rather than a raw wire
// enum, but the verb/path/status-code mapping they carry is fixed and
// must not drift, since that contract is what every process on the wire
// agrees on.
package kvmessage
