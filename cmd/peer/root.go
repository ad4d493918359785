// Command peer runs one process of the decentralized chat's membership,
// coordination, and election core. It wires the interactive console
// front-end (line reader, LIST/EXIT command handling) — the out-of-scope
// UI collaborator spec.md §1 names — directly to internal/peer, since
// that collaborator is trivial and has no coordination logic of its own.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/config"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/healthcheck"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/membership"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/metrics"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/peer"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/ui"
	"github.com/distribuidos-Coffee-Shop-Analysis/coordinator-service/internal/wire"
)

var (
	flagName       string
	flagPort       uint16
	flagBootstrap  uint16
	flagSeedRoster string
	flagMetricsPort uint16
	flagHealthPort  uint16
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Run one node of the decentralized chat membership core",
		RunE:  runPeer,
	}
	cmd.Flags().StringVar(&flagName, "name", "", "display name (together with --port, skips the interactive prompts)")
	cmd.Flags().Uint16Var(&flagPort, "port", 0, "listen port on loopback (together with --name, skips the interactive prompts)")
	cmd.Flags().Uint16Var(&flagBootstrap, "bootstrap", 0, "existing coordinator's port to join (0 = found a new network)")
	cmd.Flags().StringVar(&flagSeedRoster, "seed-roster", "", "optional YAML file pre-populating a test roster")
	cmd.Flags().Uint16Var(&flagMetricsPort, "metrics-port", 0, "port to expose Prometheus metrics on (0 = disabled)")
	cmd.Flags().Uint16Var(&flagHealthPort, "health-port", 0, "port to expose a PING/PONG liveness responder on (0 = disabled)")
	cmd.AddCommand(newProbeCmd())
	return cmd
}

func newProbeCmd() *cobra.Command {
	var host string
	var port uint16
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether a peer's health responder is reachable before bootstrapping against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := healthcheck.NewChecker()
			if checker.IsAlive(host, port) {
				fmt.Fprintf(os.Stdout, "%s:%d is alive\n", host, port)
				return nil
			}
			return fmt.Errorf("%s:%d did not respond to a health probe", host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "host to probe")
	cmd.Flags().Uint16Var(&port, "port", 0, "health responder port to probe")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func runPeer(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", cfg.SelfName), log.LstdFlags)

	self := membership.Addr{Host: cfg.SelfHost, Port: cfg.SelfPort}
	p := peer.New(self, cfg.SelfName, logger)

	if flagSeedRoster != "" {
		roster, err := config.LoadSeedRoster(flagSeedRoster)
		if err != nil {
			logger.Printf("seed roster not applied: %v", err)
		} else {
			config.ApplySeedRoster(p.Store, roster)
			logger.Printf("applied seed roster with %d peers to membership", len(roster.Peers))
		}
	}

	if flagMetricsPort != 0 {
		go serveMetrics(flagMetricsPort, logger)
	}
	if flagHealthPort != 0 {
		go func() {
			addr := fmt.Sprintf("127.0.0.1:%d", flagHealthPort)
			if err := healthcheck.ServePingPong(addr, logger); err != nil {
				logger.Printf("health responder stopped: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := p.Start(ctx, cfg.Bootstrap); err != nil {
		return fmt.Errorf("start peer: %w", err)
	}
	defer p.Stop()

	go printEvents(p)

	fmt.Fprintln(os.Stdout, "Chat started. Type LIST to view peers or EXIT to leave.")

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case sig := <-sigCh:
			logger.Printf("received signal %v, shutting down", sig)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line != "EXIT" && wire.IsReserved(line) {
				fmt.Fprintln(os.Stdout, "that word is reserved by the protocol and cannot be sent as a chat line")
				continue
			}
			if out := p.HandleUserLine(line); out != nil {
				for _, row := range out {
					fmt.Fprintln(os.Stdout, row)
				}
			}
			if line == "EXIT" {
				return nil
			}
		}
	}
}

func resolveConfig(cmd *cobra.Command) (config.Peer, error) {
	if cmd.Flags().Changed("name") && cmd.Flags().Changed("port") {
		cfg := config.Peer{SelfName: flagName, SelfHost: "127.0.0.1", SelfPort: flagPort}
		if cmd.Flags().Changed("bootstrap") && flagBootstrap != 0 {
			cfg.Bootstrap = &membership.Addr{Host: "127.0.0.1", Port: flagBootstrap}
		}
		return cfg, nil
	}
	return config.PromptPeer(os.Stdin, os.Stdout)
}

func printEvents(p *peer.Peer) {
	for ev := range p.Store.Events() {
		fmt.Fprintln(os.Stdout, ui.FormatEvent(ev))
	}
}

func readLines(in *os.File, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func serveMetrics(port uint16, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	logger.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server stopped: %v", err)
	}
}
