// Rtun is a reverse-tunnel relay client.
//
// It keeps a control channel open to a relay server; whenever the relay
// reports that a remote peer wants to reach the tunneled service, it opens
// a data channel, binds it to the allocated connection id, and bridges
// bytes between the relay and a local TCP service (SSH by default).
//
// Usage:
//
//	rtun [flags] <relay-host> <relay-control-port> <local-service-port>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtun/internal/config"
	"github.com/1ureka/rtun/internal/session"
	"github.com/1ureka/rtun/internal/transport"
	"github.com/1ureka/rtun/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C. The client otherwise runs forever.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := flag.String("config", "", "Path to an INI config file")
	useWS := flag.Bool("ws", false, "Dial the relay over WebSocket instead of raw TCP")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadIni(cfg, *configPath); err != nil {
			util.LogError("failed to load config file '%s': %v", *configPath, err)
			os.Exit(1)
		}
	}
	if *useWS {
		cfg.UseWebSocket = true
	}

	// Positional parameters override the config file.
	args := flag.Args()
	switch len(args) {
	case 0:
		// Everything must come from the config file then.
	case 3:
		cfg.RelayHost = args[0]
		cfg.RelayPort = parsePort(args[1], "relay control port")
		cfg.LocalPort = parsePort(args[2], "local service port")
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <relay-host> <relay-control-port> <local-service-port>\n", os.Args[0])
		os.Exit(2)
	}

	if cfg.RelayHost == "" || cfg.RelayPort == 0 {
		util.LogError("no relay endpoint configured")
		os.Exit(1)
	}

	pterm.Info.Println(fmt.Sprintf("rtun v%s", version))

	var dialer transport.Dialer = transport.TCP{}
	if cfg.UseWebSocket {
		dialer = transport.WS{Path: cfg.WSPath}
	}

	util.StartStatsReporter(ctx)
	util.LogInfo("relay %s, bridging to %s", cfg.ControlAddr(), cfg.LocalAddr())

	rec := session.NewReconnector(cfg, dialer)
	if err := rec.Run(ctx); err != nil && ctx.Err() == nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("shut down")
}

// parsePort converts a positional port argument, exiting on nonsense.
func parsePort(s, what string) int {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		util.LogError("invalid %s %q (must be 1~65535)", what, s)
		os.Exit(1)
	}
	return port
}
