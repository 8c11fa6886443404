// Command daqd is the headless laboratory DAQ daemon entry point. It wires
// the device registry, mock drivers, ring-buffer recording, and the gRPC
// device service together and runs them until a signal requests shutdown.
// CLI surface and exit codes (0 success, 1 configuration error, 2 runtime
// error) follow spec.md §6; flag/signal handling is grounded on
// cli/cmd/ariadne/main.go's flag.Parse + double-signal-forces-exit pattern
// in the teacher repo.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"

	"google.golang.org/grpc"

	"github.com/easternanemone/rust-daq-sub009/drivers/mock"
	"github.com/easternanemone/rust-daq-sub009/internal/config"
	"github.com/easternanemone/rust-daq-sub009/internal/events"
	"github.com/easternanemone/rust-daq-sub009/internal/health"
	"github.com/easternanemone/rust-daq-sub009/internal/obslog"
	"github.com/easternanemone/rust-daq-sub009/internal/obsmetrics"
	"github.com/easternanemone/rust-daq-sub009/internal/ratequota"
	"github.com/easternanemone/rust-daq-sub009/internal/recorder"
	"github.com/easternanemone/rust-daq-sub009/internal/registry"
	"github.com/easternanemone/rust-daq-sub009/rpc/daqpb"
	"github.com/easternanemone/rust-daq-sub009/rpc/deviceservice"
)

const (
	exitSuccess = 0
	exitConfig  = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitConfig
	}

	switch args[0] {
	case "run":
		return runScript(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	case "-h", "-help", "--help":
		usage()
		return exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "daqd: unknown command %q\n", args[0])
		usage()
		return exitConfig
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: daqd run <script> | daemon [--config path] [--listen addr]")
}

// runScript is a placeholder: the Rhai/Python scripting engines that drive
// `run <script>` are out of scope for this daemon (spec.md §1 names them as
// clients of the core, not part of it).
func runScript(args []string) int {
	fmt.Fprintln(os.Stderr, "daqd: run <script> is not implemented by this daemon; scripting is a client concern")
	return exitConfig
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to daemon YAML config (defaults applied if empty)")
	listenAddr := fs.String("listen", "", "override rpc.listen_addr from config")
	devicesDir := fs.String("devices-dir", "", "override devices_dir from config")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Printf("daqd: %v", err)
			return exitConfig
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.RPC.ListenAddr = *listenAddr
	}
	if *devicesDir != "" {
		cfg.DevicesDir = *devicesDir
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("daqd: %v", err)
		return exitConfig
	}

	logLevel := slog.LevelInfo
	_ = logLevel.UnmarshalText([]byte(cfg.Observability.LogLevel))
	base := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	logger := obslog.New(base)

	metrics := obsmetrics.NewPrometheusProvider(obsmetrics.PrometheusProviderOptions{})
	bus := events.NewBus(metrics)
	monitor := health.NewMonitor(cfg.Health.ProbeTTL, cfg.Health.ErrorRingSize)
	reg := registry.New(logger, bus)
	quota := ratequota.New(cfg.Stream.MaxStreamsPerClient, cfg.Stream.MaxFPS)
	defer quota.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registerDrivers(ctx, reg); err != nil {
		log.Printf("daqd: %v", err)
		return exitConfig
	}

	if specs, err := loadDevices(cfg.DevicesDir); err != nil {
		log.Printf("daqd: %v", err)
		return exitConfig
	} else {
		for _, spec := range specs {
			if !spec.Enabled {
				continue
			}
			if err := reg.RegisterFromConfig(ctx, spec.ID, spec.DriverType, spec.Config); err != nil {
				log.Printf("daqd: registering device %q: %v", spec.ID, err)
				return exitConfig
			}
		}
	}

	recordings := startRecordings(ctx, logger, cfg, reg)
	defer func() {
		for _, rec := range recordings {
			_ = rec.Close()
		}
	}()

	lis, err := net.Listen("tcp", cfg.RPC.ListenAddr)
	if err != nil {
		log.Printf("daqd: listening on %s: %v", cfg.RPC.ListenAddr, err)
		return exitRuntime
	}

	grpcServer := grpc.NewServer()
	svc := deviceservice.New(logger, reg, quota, bus, monitor)
	daqpb.RegisterDeviceService(grpcServer, svc)

	var metricsSrv *http.Server
	if cfg.Observability.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.MetricsHandler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(monitor.Snapshot(r.Context()))
		})
		metricsSrv = &http.Server{Addr: cfg.Observability.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.ErrorCtx(ctx, "daqd: metrics server stopped", "error", err.Error())
			}
		}()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.InfoCtx(ctx, "daqd: signal received, shutting down")
		cancel()
		grpcServer.GracefulStop()
		<-sigCh
		logger.WarnCtx(ctx, "daqd: second signal received, forcing exit")
		os.Exit(exitRuntime)
	}()

	logger.InfoCtx(ctx, "daqd: listening", "addr", cfg.RPC.ListenAddr)
	if err := grpcServer.Serve(lis); err != nil {
		logger.ErrorCtx(ctx, "daqd: grpc server stopped", "error", err.Error())
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
		return exitRuntime
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(context.Background())
	}
	return exitSuccess
}

// registerDrivers installs every built-in mock driver factory. A real
// deployment would additionally register hardware-backed factories here
// (Thorlabs, PVCAM, etc.) behind build tags; this daemon carries only the
// mock set.
func registerDrivers(ctx context.Context, reg *registry.Registry) error {
	for _, f := range mock.Factories() {
		if err := reg.RegisterFactory(f); err != nil {
			return err
		}
	}
	return nil
}

func loadDevices(dir string) ([]config.DeviceSpec, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	return config.LoadDeviceSpecDir(dir)
}

// startRecordings opens a ring-buffer recording for every registered
// FrameProducer device (internal/recorder), independent of any gRPC
// StreamFrames client.
func startRecordings(ctx context.Context, logger obslog.Logger, cfg config.DaemonConfig, reg *registry.Registry) []*recorder.Recording {
	var recordings []*recorder.Recording
	capacityBytes := uint64(cfg.RingBuffer.CapacityMiB) * 1024 * 1024
	for _, info := range reg.ListDevices() {
		producer, ok := registry.GetFrameProducer(reg, info.ID)
		if !ok {
			continue
		}
		if err := os.MkdirAll(cfg.RingBuffer.Directory, 0o755); err != nil {
			logger.WarnCtx(ctx, "daqd: could not create ring buffer directory", "error", err.Error())
			return recordings
		}
		rec, err := recorder.Start(ctx, logger, cfg.RingBuffer.Directory, info.ID, capacityBytes, producer)
		if err != nil {
			logger.WarnCtx(ctx, "daqd: recording setup failed", "device_id", info.ID, "error", err.Error())
			continue
		}
		recordings = append(recordings, rec)
	}
	return recordings
}
