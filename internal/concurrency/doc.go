// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-session: the ordered executor that
// keeps each session's commands in submission order on a shared worker
// pool, plus optional CPU pinning of its workers.
package concurrency
