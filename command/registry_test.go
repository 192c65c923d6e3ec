package command_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/command"
	"github.com/momentics/hioload-session/fake"
	"github.com/momentics/hioload-session/packet"
	"github.com/momentics/hioload-session/session"
)

type appSession = session.AppSession[*packet.StringPackage, string]

// registryServer serves a command registry to sessions.
type registryServer struct {
	*command.StringRegistry
}

func (registryServer) Name() string                      { return "registry" }
func (registryServer) MaxRequestLength() int             { return 256 }
func (registryServer) DefaultCharset() encoding.Encoding { return unicode.UTF8 }
func (registryServer) TextEncoder() api.TextEncoder      { return nil }
func (registryServer) Sender() api.ProtocolSender        { return nil }
func (registryServer) Logger() session.Logger            { return nil }

func (registryServer) ReceiveFilterFactory() api.ReceiveFilterFactory[*packet.StringPackage] {
	return packet.NewTerminatorFilterFactory("")
}

func start(t *testing.T, reg *command.StringRegistry) (*session.StringSession, *fake.Socket) {
	t.Helper()
	s := session.NewStringSession()
	sock := fake.NewSocket(t.Name())
	s.Initialize(registryServer{reg}, sock)
	sock.Start()
	return s, sock
}

func TestRegisterDuplicate(t *testing.T) {
	reg := command.NewStringRegistry()
	noop := func(context.Context, *appSession, *packet.StringPackage) error { return nil }
	require.NoError(t, reg.RegisterFunc("PING", noop))
	err := reg.RegisterFunc("PING", noop)
	assert.ErrorIs(t, err, api.ErrAlreadyExists)
	assert.ErrorIs(t, reg.Register("NIL", nil), api.ErrInvalidArgument)
	assert.Equal(t, 1, reg.Len())
}

func TestLookupAndKeys(t *testing.T) {
	reg := command.NewStringRegistry()
	for _, k := range []string{"MULT", "ADD", "ECHO"} {
		require.NoError(t, reg.Register(k, command.String(func(context.Context, *session.StringSession, *packet.StringPackage) error {
			return nil
		})))
	}
	_, ok := reg.Lookup("ADD")
	assert.True(t, ok)
	_, ok = reg.Lookup("SUB")
	assert.False(t, ok)
	assert.Equal(t, []string{"ADD", "ECHO", "MULT"}, reg.Keys())
}

func TestExecuteRoutesByKey(t *testing.T) {
	reg := command.NewStringRegistry()
	require.NoError(t, reg.Register("ECHO", command.String(func(_ context.Context, s *session.StringSession, pkg *packet.StringPackage) error {
		s.SendString(pkg.Body)
		return nil
	})))
	s, sock := start(t, reg)

	require.NoError(t, sock.Feed([]byte("ECHO hello world\r\nNOPE x\r\n")))
	assert.Equal(t, []string{"hello world", "Unknown request: NOPE"}, sock.SentStrings())
	assert.True(t, s.Connected())
}

func TestMiddlewareOrder(t *testing.T) {
	reg := command.NewStringRegistry()
	var trace []string
	mw := func(name string) command.Middleware[*packet.StringPackage, string] {
		return func(next command.Handler[*packet.StringPackage, string]) command.Handler[*packet.StringPackage, string] {
			return command.HandlerFunc[*packet.StringPackage, string](func(ctx context.Context, s *appSession, pkg *packet.StringPackage) error {
				trace = append(trace, name+">")
				err := next.Execute(ctx, s, pkg)
				trace = append(trace, "<"+name)
				return err
			})
		}
	}
	reg.Use(mw("outer"), mw("inner"))
	reg.Use(command.Logging[*packet.StringPackage, string]())
	require.NoError(t, reg.RegisterFunc("RUN", func(context.Context, *appSession, *packet.StringPackage) error {
		trace = append(trace, "run")
		return nil
	}))
	_, sock := start(t, reg)

	require.NoError(t, sock.Feed([]byte("RUN\r\n")))
	assert.Equal(t, []string{"outer>", "inner>", "run", "<inner", "<outer"}, trace)
}

func TestHandlerErrorClosesSession(t *testing.T) {
	reg := command.NewStringRegistry()
	reg.Use(command.Logging[*packet.StringPackage, string]())
	require.NoError(t, reg.RegisterFunc("BAD", func(context.Context, *appSession, *packet.StringPackage) error {
		return errors.New("bad input")
	}))
	s, sock := start(t, reg)

	require.NoError(t, sock.Feed([]byte("BAD\r\n")))
	assert.False(t, s.Connected())
	assert.Equal(t, []api.CloseReason{api.CloseApplicationError}, sock.CloseReasons())
}

func TestTimeoutMiddleware(t *testing.T) {
	reg := command.NewStringRegistry()
	reg.Use(command.Timeout[*packet.StringPackage, string](time.Millisecond))
	var deadline bool
	require.NoError(t, reg.RegisterFunc("WAIT", func(ctx context.Context, _ *appSession, _ *packet.StringPackage) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return nil
	}))
	_, sock := start(t, reg)

	require.NoError(t, sock.Feed([]byte("WAIT\r\n")))
	assert.True(t, deadline)
}
