// File: session/pipeline.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection pipeline: receive filter, request size limit, buffer
// recycling and ordered delivery to the dispatcher.

package session

import (
	"fmt"

	"github.com/momentics/hioload-session/api"
)

var _ api.PipelineProcessor = (*Pipeline[*nopPackage])(nil)

// Pipeline owns the receive filter of one connection and delivers every
// parsed package to its handler in parse order.
type Pipeline[P any] struct {
	filter           api.ReceiveFilter[P]
	handler          api.PackageHandler[P]
	maxRequestLength int
	recycler         api.BufferRecycler

	executor api.OrderedExecutor
	affinity api.ThreadExecutingContext

	// onReject is called when input is refused.
	onReject func()
}

// NewPipeline builds a pipeline. maxRequestLength <= 0 disables the limit;
// recycler may be nil.
func NewPipeline[P any](filter api.ReceiveFilter[P], handler api.PackageHandler[P], maxRequestLength int, recycler api.BufferRecycler) *Pipeline[P] {
	return &Pipeline[P]{
		filter:           filter,
		handler:          handler,
		maxRequestLength: maxRequestLength,
		recycler:         recycler,
	}
}

// WithExecutor routes dispatch through an ordered executor using ctx as
// the affinity context.
func (p *Pipeline[P]) WithExecutor(ex api.OrderedExecutor, ctx api.ThreadExecutingContext) *Pipeline[P] {
	p.executor = ex
	p.affinity = ctx
	return p
}

// Filter returns the receive filter owned by the pipeline.
func (p *Pipeline[P]) Filter() api.ReceiveFilter[P] {
	return p.filter
}

// Process implements api.PipelineProcessor. data is handed back to the
// recycler once the filter has consumed it.
func (p *Pipeline[P]) Process(data []byte) error {
	pkgs, err := p.filter.Filter(data)
	if p.recycler != nil {
		p.recycler.RecycleBuffer(data)
	}
	for _, pkg := range pkgs {
		if derr := p.dispatch(pkg); derr != nil {
			return derr
		}
	}
	if err != nil {
		p.reject()
		return err
	}
	if p.maxRequestLength > 0 && p.filter.Buffered() > p.maxRequestLength {
		n := p.filter.Buffered()
		p.filter.Reset()
		p.reject()
		return fmt.Errorf("%w: %d bytes pending, limit %d", api.ErrRequestTooLarge, n, p.maxRequestLength)
	}
	return nil
}

func (p *Pipeline[P]) dispatch(pkg P) error {
	if p.executor == nil {
		p.handler.HandlePackage(pkg)
		return nil
	}
	return p.executor.Submit(p.affinity, func() {
		p.handler.HandlePackage(pkg)
	})
}

func (p *Pipeline[P]) reject() {
	if p.onReject != nil {
		p.onReject()
	}
}

// CreatePipelineProcessor asks the server for a receive filter bound to
// this connection and wraps it in a pipeline feeding HandlePackage.
func (s *AppSession[P, K]) CreatePipelineProcessor() api.PipelineProcessor {
	filter := s.server.ReceiveFilterFactory().CreateFilter(s.server, s, s.sock.RemoteAddr())
	var recycler api.BufferRecycler
	if r, ok := s.sock.(api.BufferRecycler); ok {
		recycler = r
	}
	p := NewPipeline[P](filter, s, s.server.MaxRequestLength(), recycler)
	if d, ok := s.server.(OrderedDispatcher); ok {
		if ex := d.Executor(); ex != nil {
			p.WithExecutor(ex, s)
		}
	}
	if m := s.metrics(); m != nil {
		p.onReject = m.RequestRejected
	}
	s.pipeline = p
	return p
}

// Pipeline returns the pipeline built by CreatePipelineProcessor.
func (s *AppSession[P, K]) Pipeline() *Pipeline[P] {
	return s.pipeline
}
