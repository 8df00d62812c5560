package logging

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"grimm.is/originguard/internal/brand"
)

// SyslogConfig holds remote syslog configuration.
type SyslogConfig struct {
	Enabled  bool   // Enable remote syslog
	Host     string // Remote syslog server hostname or IP
	Port     int    // Remote syslog server port (default: 514)
	Protocol string // udp or tcp (default: udp)
	Tag      string // Syslog tag/app name (default: originguard)
	Facility int    // Syslog facility (default: 1 = user)
}

// DefaultSyslogConfig returns sensible defaults.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Port:     514,
		Protocol: "udp",
		Tag:      brand.LowerName,
		Facility: 1, // LOG_USER
	}
}

func (c SyslogConfig) withDefaults() SyslogConfig {
	if c.Port == 0 {
		c.Port = 514
	}
	if c.Protocol == "" {
		c.Protocol = "udp"
	}
	if c.Tag == "" {
		c.Tag = brand.LowerName
	}
	return c
}

// severity maps the level of a console or JSON line to a syslog severity.
func severity(line []byte) int {
	has := func(console, json string) bool {
		return bytes.Contains(line, []byte(console)) || bytes.Contains(line, []byte(json))
	}
	switch {
	case has("[error]", `"level":"ERROR"`):
		return 3
	case has("[warn]", `"level":"WARN"`):
		return 4
	case has("[debug]", `"level":"DEBUG"`):
		return 7
	}
	return 6
}

// SyslogWriter implements io.Writer and sends each write as one RFC 3164
// message.
type SyslogWriter struct {
	mu       sync.Mutex
	conn     net.Conn
	config   SyslogConfig
	hostname string
}

// NewSyslogWriter dials the remote syslog server.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	cfg = cfg.withDefaults()

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	conn, err := net.DialTimeout(cfg.Protocol, addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog server %s: %w", addr, err)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}

	return &SyslogWriter{
		conn:     conn,
		config:   cfg,
		hostname: hostname,
	}, nil
}

// Write implements io.Writer for syslog.
func (w *SyslogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return 0, fmt.Errorf("syslog connection closed")
	}

	priority := w.config.Facility*8 + severity(p)
	msg := fmt.Sprintf("<%d>%s %s %s: %s", priority, time.Now().Format(time.Stamp), w.hostname, w.config.Tag, p)

	if _, err := w.conn.Write([]byte(msg)); err != nil {
		w.reconnect()
		return 0, err
	}
	return len(p), nil
}

func (w *SyslogWriter) reconnect() {
	if w.conn != nil {
		w.conn.Close()
	}
	addr := net.JoinHostPort(w.config.Host, fmt.Sprint(w.config.Port))
	conn, err := net.DialTimeout(w.config.Protocol, addr, 5*time.Second)
	if err != nil {
		w.conn = nil
		return
	}
	w.conn = conn
}

// Close closes the syslog connection.
func (w *SyslogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
