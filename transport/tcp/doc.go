// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements the TCP and TLS transport: a listener with an
// accept loop and the socket session that carries one connection.
package tcp
