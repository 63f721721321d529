// Package daemon coordinates the long-running syndicated process.
//
// It wires configuration, the SQLite store, the transmission engine, and the
// workflow manager into a single lifecycle with flock-based locking to prevent
// multiple instances. Start runs preflight checks, launches the workflow
// lanes, and serves the HTTP API; Stop tears everything down in reverse.
//
// The HTTP API accepts two kinds of bearer token. The static api_token grants
// operator access to every route. Buyer JWTs issued by the auth package are
// limited to the read routes and only see the buyer's own transmission
// queues.
//
// Keep orchestration logic here: refresh, transmission, and editorial rules
// live in their own packages while the daemon focuses on startup, shutdown,
// and request routing.
package daemon
