// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime observability for servers and sessions: Prometheus collectors
// for session and command activity, and named debug probes exported as
// JSON. All Metrics recording methods accept a nil receiver so callers
// without metrics need no checks.
package control
