package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/viewstate/config"
	"github.com/timzifer/viewstate/engine"
	"github.com/timzifer/viewstate/internal/logging"
	"github.com/timzifer/viewstate/registry"
	mqttsource "github.com/timzifer/viewstate/source/mqtt"
	"github.com/timzifer/viewstate/status"
	"github.com/timzifer/viewstate/store"
	"github.com/timzifer/viewstate/telemetry"
	"github.com/timzifer/viewstate/translator"
)

func main() {
	cfgPath := flag.String("config", "viewstate.yaml", "Path to configuration file")
	eventsPath := flag.String("events", "-", "JSON lines event file, - for stdin, empty to disable")
	configCheck := flag.Bool("config-check", false, "Print the role table and exit")
	metricsListen := flag.String("metrics-listen", "", "Serve Prometheus metrics on this address")
	follow := flag.Bool("follow", false, "Keep running after the event input ends")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(os.Stdout, cfg))
	}

	logger, cleanup, err := logging.Setup(cfg.Logging, os.Stderr, logging.WithRuleSet(cfg.Name))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithConfig(cfg),
		engine.WithConfigPath(*cfgPath),
	}
	if *metricsListen != "" {
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to register metrics")
		}
		opts = append(opts, engine.WithTelemetry(collector))
		srv := serveMetrics(*metricsListen, logger)
		defer shutdown(srv)
	}

	eng, err := engine.New(opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create engine")
	}

	events := make(chan translator.Event)
	mqttEnabled := cfg.Sources.MQTT.Enabled
	if mqttEnabled {
		src, err := mqttsource.New(cfg.Sources.MQTT, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create mqtt source")
		}
		go func() {
			if err := src.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("mqtt source stopped")
				cancel()
			}
		}()
	}

	if *eventsPath != "" {
		input, closeInput, err := openEvents(*eventsPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open event input")
		}
		defer closeInput()
		go readEvents(ctx, input, events, *follow || mqttEnabled, logger)
	} else if !mqttEnabled {
		logger.Fatal().Msg("no event input: pass -events or enable sources.mqtt")
	}

	if err := eng.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("engine stopped with error")
	}

	if err := writeSnapshot(os.Stdout, eng.Snapshot()); err != nil {
		logger.Fatal().Err(err).Msg("failed to write snapshot")
	}
}

func openEvents(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open events %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// readEvents decodes one record per line. Blank lines are skipped and
// undecodable lines logged. With follow set the channel stays open after the
// input ends so the engine keeps running until interrupted.
func readEvents(ctx context.Context, r io.Reader, out chan<- translator.Event, follow bool, logger zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		rec, err := translator.DecodeRecord([]byte(raw))
		if err != nil {
			logger.Warn().Err(err).Int("line", line).Msg("skipping event")
			continue
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("failed to read events")
	}
	if !follow {
		close(out)
	}
}

type snapshotLine struct {
	ID     string        `json:"id"`
	Status *status.Value `json:"status"`
}

func writeSnapshot(w io.Writer, c *store.Collection) error {
	enc := json.NewEncoder(w)
	for _, entry := range c.All() {
		if err := enc.Encode(snapshotLine{ID: entry.ID, Status: entry.Status}); err != nil {
			return fmt.Errorf("encode %s: %w", entry.ID, err)
		}
	}
	return nil
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func executeConfigCheck(w io.Writer, cfg *config.Config) int {
	reg := registry.New(cfg.RegistryRules()...)
	payloads := cfg.PayloadExpressions()

	for _, rule := range cfg.Rules {
		fmt.Fprintf(w, "Rule %q\n", rule.Start)
		if module := describeModule(rule.Source); module != "" {
			fmt.Fprintf(w, "  Module: %s\n", module)
		}
		if rule.Description != "" {
			fmt.Fprintf(w, "  Description: %s\n", rule.Description)
		}
		printList(w, "Reset on", rule.Reset)
		printList(w, "Error on", rule.Error)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Events:")
	for _, event := range reg.Events() {
		roles := make([]string, 0)
		for _, assignment := range reg.RolesFor(event) {
			target := assignment.For
			if target == "" {
				target = event
			}
			roles = append(roles, fmt.Sprintf("%s(%s)", assignment.Role, target))
		}
		fmt.Fprintf(w, "  %s: %s", event, strings.Join(roles, ", "))
		if expr, ok := payloads[event]; ok {
			fmt.Fprintf(w, " [payload: %s]", expr)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration check completed successfully.")
	return 0
}

func printList(w io.Writer, label string, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintf(w, "  %s: <none>\n", label)
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(ids, ", "))
}

func describeModule(ref config.ModuleReference) string {
	name := strings.TrimSpace(ref.Name)
	file := strings.TrimSpace(ref.File)
	desc := strings.TrimSpace(ref.Description)

	label := ""
	if name != "" && file != "" {
		label = fmt.Sprintf("%s (%s)", name, file)
	} else if name != "" {
		label = name
	} else if file != "" {
		label = file
	}
	if desc != "" {
		if label != "" {
			label = fmt.Sprintf("%s: %s", label, desc)
		} else {
			label = desc
		}
	}
	return label
}
