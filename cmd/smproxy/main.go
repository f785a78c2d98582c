// SMProxy command line entry point.
//
// This tool sits between a game client and a server speaking protocol 49,
// terminating the encryption handshake on both sides so every packet can be
// decoded, logged and optionally suppressed before it is relayed.
//
// Usage:
//
//	smproxy [flags] [remote [local]]
//
// Without a remote endpoint and with a terminal attached, it asks for one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/1ureka/smproxy/internal/config"
	"github.com/1ureka/smproxy/internal/handshake"
	"github.com/1ureka/smproxy/internal/monitor"
	"github.com/1ureka/smproxy/internal/packetlog"
	"github.com/1ureka/smproxy/internal/proxy"
	"github.com/1ureka/smproxy/internal/resolve"
	"github.com/1ureka/smproxy/internal/session"
	"github.com/1ureka/smproxy/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, remoteGiven, err := parseFlags(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(2)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("SMProxy — v%s", version))
	pterm.Println()

	if !remoteGiven && term.IsTerminal(int(os.Stdin.Fd())) {
		cfg.RemoteAddr = askEndpoint("Remote server (host[:port])", cfg.RemoteAddr)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("proxy stopped")
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// run wires the proxy, the observers and the optional monitor together and
// blocks until ctx is cancelled or one of them fails.
func run(ctx context.Context, cfg config.Config) error {
	util.LogInfo("generating %d-bit RSA keypair", handshake.KeyBits)
	keys, err := handshake.GenerateKeyPair(handshake.KeyBits)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	if cfg.Username != "" {
		util.LogInfo("joining online mode servers as %s", cfg.Username)
	}
	if cfg.AuthenticateClients {
		util.LogInfo("clients must be logged in to the session server")
	}

	var observers session.Observers
	var hub *monitor.Hub
	if cfg.MonitorAddr != "" {
		hub = monitor.New()
		observers = append(observers, hub)
	}
	// The packet log goes last so it records what the other observers decided.
	if cfg.LogDir != "" {
		observers = append(observers, packetlog.New(packetlog.DirOpener(cfg.LogDir), packetlog.Options{
			LogClient: cfg.LogClient,
			LogServer: cfg.LogServer,
			Filter:    cfg.PacketFilter,
		}))
	}

	srv := proxy.New(cfg, proxy.SessionOptions(cfg, keys, observers), resolve.New())

	util.StartStatsReporter(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.ListenAddr) })
	if hub != nil {
		g.Go(func() error { return hub.ListenAndServe(ctx, cfg.MonitorAddr) })
	}
	return g.Wait()
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

// parseFlags builds the configuration from the command line. remoteGiven
// reports whether the remote endpoint was set explicitly.
func parseFlags(args []string, getenv func(string) string, output io.Writer) (cfg config.Config, remoteGiven bool, err error) {
	cfg = config.Default()

	fs := flag.NewFlagSet("smproxy", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage: smproxy [flags] [remote [local]]")
		fs.PrintDefaults()
	}

	remote := fs.String("remote", "", "Real server endpoint, host[:port] (default "+cfg.RemoteAddr+")")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Address clients connect to")
	fs.StringVar(&cfg.Username, "username", "", "Account used to join online mode servers")
	fs.StringVar(&cfg.Password, "password", "", "Password for -username (or set "+config.PasswordEnv+")")
	fs.BoolVar(&cfg.AuthenticateClients, "authenticate-clients", false, "Require clients to be logged in to the session server")
	fs.BoolVar(&cfg.StrictVerifyToken, "strict-token", false, "Drop sessions whose client echoes a wrong verify token")
	fs.StringVar(&cfg.LoginURL, "login-url", cfg.LoginURL, "Login endpoint")
	fs.StringVar(&cfg.JoinURL, "join-url", cfg.JoinURL, "Join server endpoint")
	fs.StringVar(&cfg.CheckURL, "check-url", cfg.CheckURL, "Check server endpoint")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for per-session packet logs, empty to disable")
	omitClient := fs.Bool("omit-client", false, "Do not log packets sent by the client")
	omitServer := fs.Bool("omit-server", false, "Do not log packets sent by the server")
	filter := fs.String("filter", "", "Only log these packet ids, e.g. 03,0x0D")
	unfilter := fs.String("unfilter", "", "Do not log these packet ids")
	fs.StringVar(&cfg.MonitorAddr, "monitor", "", "Serve a live packet feed on this address, e.g. 127.0.0.1:8080")
	fs.Float64Var(&cfg.AcceptRate, "accept-rate", cfg.AcceptRate, "New connections per second, 0 for no limit")
	fs.IntVar(&cfg.AcceptBurst, "accept-burst", cfg.AcceptBurst, "Connections accepted at once before -accept-rate applies")
	fs.DurationVar(&cfg.PacketTimeout, "packet-timeout", cfg.PacketTimeout, "Drop a peer that stalls this long inside a packet, 0 to wait forever")
	fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		*remote = firstNonEmpty(*remote, rest[0])
	case 2:
		*remote = firstNonEmpty(*remote, rest[0])
		cfg.ListenAddr = rest[1]
	default:
		return cfg, false, fmt.Errorf("too many arguments: %s", strings.Join(rest, " "))
	}

	if *remote != "" {
		cfg.RemoteAddr = *remote
		remoteGiven = true
	}
	cfg.ListenAddr = listenAddr(cfg.ListenAddr)

	if cfg.Password == "" {
		cfg.Password = getenv(config.PasswordEnv)
		// A password in the environment alone does not turn on login.
		if cfg.Username == "" {
			cfg.Password = ""
		}
	}

	cfg.LogClient = !*omitClient
	cfg.LogServer = !*omitServer

	if *filter != "" {
		ids, err := config.ParseFilter(*filter)
		if err != nil {
			return cfg, false, err
		}
		cfg.PacketFilter = config.Only(ids)
	}
	if *unfilter != "" {
		ids, err := config.ParseFilter(*unfilter)
		if err != nil {
			return cfg, false, err
		}
		cfg.PacketFilter = cfg.PacketFilter.Without(ids)
	}

	return cfg, remoteGiven, nil
}

// listenAddr turns a bare port into a loopback address.
func listenAddr(s string) string {
	s = strings.TrimSpace(s)
	if s != "" && !strings.Contains(s, ":") {
		return "127.0.0.1:" + s
	}
	return s
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askEndpoint prompts until a non-empty endpoint is entered; an empty answer
// keeps def.
func askEndpoint(prompt, def string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			WithDefaultValue(def).
			Show()

		raw = strings.TrimSpace(raw)
		if raw == "" {
			raw = def
		}
		if raw != "" && !strings.ContainsAny(raw, " /") {
			pterm.Println()
			return raw
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter host[:port]")
	}
}
