// Package ipc lets the syndicate CLI control a running syndicated process.
//
// The daemon serves JSON-RPC over a Unix domain socket under the "Syndicate"
// service name. Requests and responses reuse the HTTP API DTOs so both
// surfaces render the same data.
package ipc
