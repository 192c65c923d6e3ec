package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-session/protocol"
)

func startServers(t *testing.T, opts serveOptions) *servers {
	t.Helper()
	srvs, err := buildServers(opts)
	require.NoError(t, err)
	require.NoError(t, srvs.line.Start())
	t.Cleanup(func() { _ = srvs.line.Stop() })
	if srvs.framed != nil {
		require.NoError(t, srvs.framed.Start())
		t.Cleanup(func() { _ = srvs.framed.Stop() })
	}
	return srvs
}

func TestLineCommandsOverTCP(t *testing.T) {
	srvs := startServers(t, serveOptions{tcpAddr: "127.0.0.1:0"})
	conn, err := net.Dial("tcp", srvs.line.Addrs()[0].String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = io.WriteString(conn, "ECHO hi there\r\nADD 1 2 3\r\nMULT 2 x\r\nMULT 4 5\r\nWHAT\r\nQUIT\r\n")
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, strings.TrimSuffix(line, "\r\n"))
	}
	assert.Equal(t, []string{"hi there", "6", "ERR not a number: x", "20", "Unknown request: WHAT", "BYE"}, lines)
}

func TestFramedCommands(t *testing.T) {
	srvs := startServers(t, serveOptions{framedAddr: "127.0.0.1:0"})
	conn, err := net.Dial("tcp", srvs.framed.Addrs()[0].String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	key := [4]byte{1, 2, 3, 4}
	req, err := protocol.EncodeFrame(nil, protocol.OpcodeText, []byte("ADD 40 2"), &key)
	require.NoError(t, err)
	_, err = conn.Write(req)
	require.NoError(t, err)

	var buf []byte
	chunk := make([]byte, 256)
	for {
		f, _, err := protocol.DecodeFrameFromBytes(buf, 0)
		require.NoError(t, err)
		if f != nil {
			assert.Equal(t, "42", string(f.Payload))
			break
		}
		n, err := conn.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
	}
}

func TestRouter(t *testing.T) {
	srvs := startServers(t, serveOptions{})
	httpSrv := httptest.NewServer(srvs.http.Handler)
	defer httpSrv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer client.Close()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ECHO over ws")))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "over ws", string(msg), "websocket replies are not line terminated")
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("NOPE")))
	_, msg, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Unknown request: NOPE", string(msg))

	resp, err := http.Get(httpSrv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `hioload_sessions_active{server="hioload"} 1`)
	assert.Contains(t, string(body), `hioload_commands_total{result="ok",server="hioload"}`)

	resp, err = http.Get(httpSrv.URL + "/debug/state")
	require.NoError(t, err)
	var state map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	resp.Body.Close()
	assert.Equal(t, float64(1), state["server.sessions"])

	resp, err = http.Get(httpSrv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildServersFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: demo\nworkers: 2\nclearIdleSession: false\n"), 0o600))

	srvs, err := buildServers(serveOptions{configPath: path, workers: 3})
	require.NoError(t, err)
	cfg := srvs.line.Config()
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, 3, cfg.Workers, "flags override the file")
	assert.Empty(t, cfg.Listeners)

	_, err = buildServers(serveOptions{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "hioload-echo dev (none)\n", out.String())
}
