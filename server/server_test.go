package server_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/command"
	"github.com/momentics/hioload-session/control"
	"github.com/momentics/hioload-session/fake"
	"github.com/momentics/hioload-session/packet"
	"github.com/momentics/hioload-session/server"
	"github.com/momentics/hioload-session/session"
)

type stringServer = server.AppServer[*packet.StringPackage, string]

func echoRegistry(t *testing.T) *command.StringRegistry {
	t.Helper()
	reg := command.NewStringRegistry()
	require.NoError(t, reg.Register("ECHO", command.String(func(_ context.Context, s *session.StringSession, pkg *packet.StringPackage) error {
		s.SendString(pkg.Body)
		return nil
	})))
	return reg
}

func lineSessions() func() *session.AppSession[*packet.StringPackage, string] {
	return func() *session.AppSession[*packet.StringPackage, string] {
		return session.NewStringSession(
			session.WithProtocolHandler[*packet.StringPackage, string](packet.NewLineHandler("")),
		).AppSession
	}
}

func newServer(t *testing.T, cfg server.Config, opts ...server.Option[*packet.StringPackage, string]) *stringServer {
	t.Helper()
	opts = append([]server.Option[*packet.StringPackage, string]{server.WithConfig[*packet.StringPackage, string](cfg)}, opts...)
	srv, err := server.New[*packet.StringPackage, string](echoRegistry(t), packet.NewTerminatorFilterFactory(""), opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func testConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Name = "test"
	cfg.ClearIdleSession = false
	return cfg
}

func TestServerOverTCP(t *testing.T) {
	cfg := testConfig()
	cfg.Listeners = []server.ListenerConfig{{Address: "127.0.0.1:0"}}
	srv := newServer(t, cfg, server.WithSessionFactory(lineSessions()))
	require.Len(t, srv.Addrs(), 1)

	conn, err := net.Dial("tcp", srv.Addrs()[0].String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("ECHO hello world\r\nFOO\r\n"))
	require.NoError(t, err)
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello world\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Unknown request: FOO\r\n", line)
	assert.Equal(t, 1, srv.SessionCount())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return srv.SessionCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStartTwiceAndAfterStop(t *testing.T) {
	srv := newServer(t, testConfig())
	assert.ErrorIs(t, srv.Start(), api.ErrServerRunning)
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
	assert.False(t, srv.Running())
	assert.ErrorIs(t, srv.Start(), api.ErrTransportClosed)

	sock := fake.NewSocket("late")
	assert.ErrorIs(t, srv.Accept(sock), api.ErrTransportClosed)
	assert.Equal(t, []api.CloseReason{api.CloseServerShutdown}, sock.CloseReasons())
}

func TestMaxConnectionNumber(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnectionNumber = 1
	srv := newServer(t, cfg)

	a := fake.NewSocket("a")
	require.NoError(t, srv.Accept(a))
	assert.True(t, a.Started())

	b := fake.NewSocket("b")
	assert.ErrorIs(t, srv.Accept(b), api.ErrTooManySessions)
	assert.False(t, b.Started())
	assert.Equal(t, []api.CloseReason{api.CloseServerClosing}, b.CloseReasons())
	assert.Equal(t, 1, srv.SessionCount())

	a.Close(api.CloseClientClosing)
	assert.Equal(t, 0, srv.SessionCount())
	require.NoError(t, srv.Accept(fake.NewSocket("c")))
	_, ok := srv.GetSession("c")
	assert.True(t, ok)
}

func TestDuplicateSessionID(t *testing.T) {
	srv := newServer(t, testConfig())
	require.NoError(t, srv.Accept(fake.NewSocket("same")))
	dup := fake.NewSocket("same")
	assert.ErrorIs(t, srv.Accept(dup), api.ErrAlreadyExists)

	got, ok := srv.GetSession("same")
	require.True(t, ok)
	assert.True(t, got.Connected(), "the first session stays registered")
	assert.Equal(t, 1, srv.SessionCount())
}

func TestClearIdleSessions(t *testing.T) {
	cfg := testConfig()
	cfg.IdleSessionTimeOut = time.Minute
	srv := newServer(t, cfg)

	idle := fake.NewSocket("idle")
	busy := fake.NewSocket("busy")
	require.NoError(t, srv.Accept(idle))
	require.NoError(t, srv.Accept(busy))
	require.NoError(t, busy.Feed([]byte("ECHO x\r\n")))

	s, ok := srv.GetSession("busy")
	require.True(t, ok)
	s.SetLastActiveTime(time.Now().Add(2 * time.Minute))

	assert.Equal(t, 1, srv.ClearIdleSessions(time.Now().Add(90*time.Second)))
	assert.Equal(t, []api.CloseReason{api.CloseTimeOut}, idle.CloseReasons())
	assert.Empty(t, busy.CloseReasons())
	assert.Equal(t, 1, srv.SessionCount())
}

func TestIdleSweeperRuns(t *testing.T) {
	cfg := testConfig()
	cfg.ClearIdleSession = true
	cfg.ClearIdleSessionInterval = 10 * time.Millisecond
	cfg.IdleSessionTimeOut = 20 * time.Millisecond
	srv := newServer(t, cfg)

	sock := fake.NewSocket("sleepy")
	require.NoError(t, srv.Accept(sock))
	assert.Eventually(t, func() bool { return !sock.Connected() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []api.CloseReason{api.CloseTimeOut}, sock.CloseReasons())
}

func TestStopClosesSessions(t *testing.T) {
	srv := newServer(t, testConfig())
	socks := []*fake.Socket{fake.NewSocket("1"), fake.NewSocket("2"), fake.NewSocket("3")}
	for _, s := range socks {
		require.NoError(t, srv.Accept(s))
	}
	require.NoError(t, srv.Stop())
	for _, s := range socks {
		assert.Equal(t, []api.CloseReason{api.CloseServerShutdown}, s.CloseReasons())
	}
	assert.Zero(t, srv.SessionCount())
}

func TestOrderedWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	srv := newServer(t, cfg)
	require.NotNil(t, srv.Executor())

	sock := fake.NewSocket("w")
	require.NoError(t, srv.Accept(sock))
	require.NoError(t, sock.Feed([]byte("ECHO 1\r\nECHO 2\r\nECHO 3\r\n")))
	assert.Eventually(t, func() bool { return len(sock.SentStrings()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, sock.SentStrings())

	s, ok := srv.GetSession("w")
	require.True(t, ok)
	assert.Greater(t, s.PreferredThreadID(), 0)
	sock.Close(api.CloseClientClosing)
	assert.Equal(t, 0, s.PreferredThreadID(), "closing unbinds the session")
}

func TestSharedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(control.WithRegistry(reg))
	srv := newServer(t, testConfig(), server.WithMetrics[*packet.StringPackage, string](m))
	assert.Same(t, m, srv.Metrics())

	require.NoError(t, srv.Accept(fake.NewSocket("m")))
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["hioload_sessions_active"])
}

func TestNewRejectsInvalidInput(t *testing.T) {
	_, err := server.New[*packet.StringPackage, string](nil, packet.NewTerminatorFilterFactory(""))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	cfg := testConfig()
	cfg.MaxRequestLength = 0
	_, err = server.New[*packet.StringPackage, string](echoRegistry(t), packet.NewTerminatorFilterFactory(""),
		server.WithConfig[*packet.StringPackage, string](cfg))
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, api.ErrCodeInvalidArgument, apiErr.Code)
	assert.Equal(t, "maxRequestLength", apiErr.Context["field"])
}

func TestLogFile(t *testing.T) {
	cfg := testConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "server.log")
	srv := newServer(t, cfg)
	require.NoError(t, srv.Accept(fake.NewSocket("logged")))
	require.NoError(t, srv.Stop())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session logged connected")
}
