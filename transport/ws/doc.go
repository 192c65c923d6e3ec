// File: transport/ws/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package ws carries sessions over WebSocket connections using
// github.com/gorilla/websocket. Handler serves the HTTP upgrade, Dial
// opens client sessions.
package ws
