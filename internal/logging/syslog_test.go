package logging

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSyslogConfig(t *testing.T) {
	cfg := DefaultSyslogConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 514, cfg.Port)
	assert.Equal(t, "udp", cfg.Protocol)
	assert.Equal(t, "originguard", cfg.Tag)
	assert.Equal(t, 1, cfg.Facility)
}

func TestNewSyslogWriter_MissingHost(t *testing.T) {
	_, err := NewSyslogWriter(SyslogConfig{Enabled: true})
	assert.Error(t, err)
}

func TestSyslogWriter_UDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	w, err := NewSyslogWriter(SyslogConfig{Host: "127.0.0.1", Port: port, Facility: 1})
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	read, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	msg := string(buf[:read])
	assert.True(t, strings.HasPrefix(msg, "<14>"), msg)
	assert.Contains(t, msg, "originguard: hello")

	_, err = w.Write([]byte("2026-03-01T12:00:00Z originguard[1]: [warn] reconcile: Failed to persist snapshot\n"))
	require.NoError(t, err)
	read, _, err = pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(buf[:read]), "<12>"), string(buf[:read]))

	require.NoError(t, w.Close())
	_, err = w.Write([]byte("after close"))
	assert.Error(t, err)
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, 3, severity([]byte("[error] x")))
	assert.Equal(t, 4, severity([]byte("[warn] x")))
	assert.Equal(t, 6, severity([]byte("[info] x")))
	assert.Equal(t, 7, severity([]byte("[debug] x")))
	assert.Equal(t, 4, severity([]byte(`{"level":"WARN","msg":"x"}`)))
}
