// Package wire is the HTTP boundary: it turns an internal/kvmessage
// Request/Response into an HTTP request/response and back, using the
// fixed verb/path/status mapping kvmessage.Type defines. It is
// deliberately thin: Client and Router only encode and decode; every
// decision about what a request means lives in internal/leader and
// internal/follower.
//
// Client implements leader.FollowerClient over real HTTP: context-scoped
// requests against a shared *http.Client. Router is a gorilla/mux-based
// adapter in front of an internal/follower.Follower or
// internal/leader.Coordinator.
package wire
