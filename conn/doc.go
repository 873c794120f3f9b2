// Package conn ties together handler, muxer, and upgrade into the
// single-connection driver described in spec.md: Connection. See
// connection.go for the priority-laddered Poll implementation, shutdown.go
// for the keep-alive/shutdown state machine, and requested.go for the
// outbound-substream request future.
package conn
