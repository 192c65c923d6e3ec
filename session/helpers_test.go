package session_test

import (
	"context"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/fake"
	"github.com/momentics/hioload-session/packet"
	"github.com/momentics/hioload-session/session"
)

type stringSession = session.AppSession[*packet.StringPackage, string]

type commandFunc func(s *stringSession, pkg *packet.StringPackage) error

type contextCommandFunc func(ctx context.Context, s *stringSession) error

// testServer is a minimal session.Server with a command map.
type testServer struct {
	mu       sync.Mutex
	commands map[string]commandFunc
	withCtx  map[string]contextCommandFunc
	executed []string
	charset  encoding.Encoding
	encoder  api.TextEncoder
	maxLen   int
	executor api.OrderedExecutor
	logs     []string
}

func newTestServer() *testServer {
	return &testServer{
		commands: make(map[string]commandFunc),
		withCtx:  make(map[string]contextCommandFunc),
		charset:  unicode.UTF8,
		maxLen:   1024,
	}
}

func (ts *testServer) handle(key string, fn commandFunc) *testServer {
	ts.commands[key] = fn
	return ts
}

func (ts *testServer) Name() string          { return "test" }
func (ts *testServer) MaxRequestLength() int { return ts.maxLen }

// handleContext registers a command that observes the dispatch context.
func (ts *testServer) handleContext(key string, fn contextCommandFunc) *testServer {
	ts.withCtx[key] = fn
	return ts
}

func (ts *testServer) ExecuteCommand(ctx context.Context, s *stringSession, pkg *packet.StringPackage) error {
	ts.mu.Lock()
	ts.executed = append(ts.executed, pkg.Key())
	fn, ok := ts.commands[pkg.Key()]
	ctxFn, ctxOK := ts.withCtx[pkg.Key()]
	ts.mu.Unlock()
	if ctxOK {
		return ctxFn(ctx, s)
	}
	if !ok {
		s.HandleUnknownRequest(pkg)
		return nil
	}
	return fn(s, pkg)
}

func (ts *testServer) Executed() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.executed...)
}

func (ts *testServer) DefaultCharset() encoding.Encoding { return ts.charset }
func (ts *testServer) TextEncoder() api.TextEncoder      { return ts.encoder }

func (ts *testServer) ReceiveFilterFactory() api.ReceiveFilterFactory[*packet.StringPackage] {
	return packet.NewTerminatorFilterFactory(packet.DefaultTerminator)
}

func (ts *testServer) Sender() api.ProtocolSender { return nil }
func (ts *testServer) Logger() session.Logger     { return ts }

func (ts *testServer) Infof(format string, v ...any)    { ts.log(format) }
func (ts *testServer) Warningf(format string, v ...any) { ts.log(format) }
func (ts *testServer) Errorf(format string, v ...any)   { ts.log(format) }

func (ts *testServer) log(format string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.logs = append(ts.logs, format)
}

func (ts *testServer) Logs() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.logs...)
}

// orderedServer adds an ordered executor to testServer.
type orderedServer struct {
	*testServer
}

func (o orderedServer) Executor() api.OrderedExecutor { return o.executor }

// startString wires a string session to a fake socket and starts it.
func startString(srv session.StringServer, opts ...session.Option[*packet.StringPackage, string]) (*session.StringSession, *fake.Socket) {
	s := session.NewStringSession(opts...)
	sock := fake.NewSocket("s-1")
	s.Initialize(srv, sock)
	sock.Start()
	return s, sock
}
