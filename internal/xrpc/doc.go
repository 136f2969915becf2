// Package xrpc dispatches method calls to handler scripts or built-in
// record handlers, and defines the wire error taxonomy the HTTP layer
// serializes.
package xrpc
