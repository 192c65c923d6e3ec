// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package session implements the application session: the per-connection
// object that sits between a transport and the command layer.
//
// An AppSession is created by the server, bound to a transport with
// Initialize and closed exactly once. While connected it builds the
// receive pipeline from the server's filter factory, dispatches every
// parsed package in arrival order, and writes replies through the
// server's protocol sender and the session's optional protocol handler.
// A failing command closes the session with CloseApplicationError; the
// failure never reaches the transport.
//
// ThreadAffinity is the scheduling hint consulted by ordered executors.
// StringSession specializes AppSession for string keyed text protocols
// and answers unknown keys with "Unknown request: <key>".
package session
