// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory reuse for the I/O path: the fixed-size receive buffer pool
// transports read into.
package pool
