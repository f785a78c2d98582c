// Package config holds the proxy configuration. A Config is built once at
// startup and shared read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/1ureka/smproxy/internal/auth"
)

// PasswordEnv is read when no password is given on the command line.
const PasswordEnv = "SMPROXY_PASSWORD"

// Config stores every setting the proxy runs with.
type Config struct {
	ListenAddr string // where clients connect
	RemoteAddr string // the real server, "host[:port]"

	AuthenticateClients bool
	StrictVerifyToken   bool

	// Account the proxy joins online mode servers with.
	Username string
	Password string

	LoginURL string
	JoinURL  string
	CheckURL string

	// Packet log. An empty LogDir disables it.
	LogDir       string
	LogClient    bool
	LogServer    bool
	PacketFilter Filter

	MonitorAddr string // live feed listen address, empty to disable

	AcceptRate  float64 // new connections per second, 0 for no limit
	AcceptBurst int

	PacketTimeout time.Duration // time allowed to finish a started packet, 0 to wait forever

	Debug bool
}

// Default returns the settings used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr:   "127.0.0.1:25564",
		RemoteAddr:   "127.0.0.1:25565",
		LoginURL:     auth.DefaultLoginURL,
		JoinURL:      auth.DefaultJoinURL,
		CheckURL:     auth.DefaultCheckURL,
		LogDir:       ".",
		LogClient:    true,
		LogServer:    true,
		PacketFilter: AllPackets(),
		AcceptRate:   0,
		AcceptBurst:  8,

		PacketTimeout: 30 * time.Second,
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("config: listen address %q: %w", c.ListenAddr, err)
	}
	if strings.TrimSpace(c.RemoteAddr) == "" {
		return errors.New("config: remote address is required")
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("config: password given without a username")
	}
	if c.Username != "" && c.Password == "" {
		return fmt.Errorf("config: username %q given without a password (set %s)", c.Username, PasswordEnv)
	}
	if c.AuthenticateClients && c.CheckURL == "" {
		return errors.New("config: client authentication needs a check URL")
	}
	if c.MonitorAddr != "" {
		if _, _, err := net.SplitHostPort(c.MonitorAddr); err != nil {
			return fmt.Errorf("config: monitor address %q: %w", c.MonitorAddr, err)
		}
	}
	if c.AcceptRate < 0 {
		return errors.New("config: accept rate must not be negative")
	}
	if c.AcceptRate > 0 && c.AcceptBurst < 1 {
		return errors.New("config: accept burst must be at least 1")
	}
	if c.PacketTimeout < 0 {
		return errors.New("config: packet timeout must not be negative")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Packet filter
// ---------------------------------------------------------------------------

// Filter is the set of packet ids written to the packet log.
type Filter [256]bool

// AllPackets returns a filter that lets every id through.
func AllPackets() Filter {
	var f Filter
	for i := range f {
		f[i] = true
	}
	return f
}

// Only returns a filter containing just ids.
func Only(ids []byte) Filter {
	var f Filter
	for _, id := range ids {
		f[id] = true
	}
	return f
}

// Without returns a copy of f with ids removed.
func (f Filter) Without(ids []byte) Filter {
	for _, id := range ids {
		f[id] = false
	}
	return f
}

// Contains reports whether id passes the filter.
func (f Filter) Contains(id byte) bool {
	return f[id]
}

// ParseFilter parses a comma separated list of hexadecimal packet ids, with
// or without a 0x prefix, e.g. "03,0x0D,ff".
func ParseFilter(s string) ([]byte, error) {
	var ids []byte
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hex := strings.TrimPrefix(strings.TrimPrefix(part, "0x"), "0X")
		v, err := strconv.ParseUint(hex, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("config: bad packet id %q", part)
		}
		ids = append(ids, byte(v))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("config: empty packet filter %q", s)
	}
	return ids, nil
}
