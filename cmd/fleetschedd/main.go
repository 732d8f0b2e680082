package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensched/fleetsched/pkg/bridge"
	"github.com/opensched/fleetsched/pkg/config"
	"github.com/opensched/fleetsched/pkg/fleet"
	"github.com/opensched/fleetsched/pkg/log"
	"github.com/opensched/fleetsched/pkg/metrics"
	"github.com/opensched/fleetsched/pkg/resource"
	"github.com/opensched/fleetsched/pkg/scheduler"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fleetschedd",
	Short:   "fleetschedd - resource-and-job scheduler for a simulated HPC fleet",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleetschedd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler daemon",
	Long: `Start fleetschedd: load the fleet from a config file and hostfile,
run the background state-refresh loop against the bridge, and serve
metrics and health endpoints over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		hostfilePath, _ := cmd.Flags().GetString("hostfile")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg := config.Defaults()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
		}
		if hostfilePath == "" {
			hostfilePath = cfg.Hostfile
		}

		set := fleet.New()
		var nodeSpecs []bridge.NodeSpec
		if hostfilePath != "" {
			names, err := config.LoadHostfile(hostfilePath)
			if err != nil {
				return fmt.Errorf("load hostfile: %w", err)
			}
			for i, name := range names {
				r := resource.New(name, i+1)
				r.Managed = true
				_ = r.SetStatus(resource.StatusIdle)
				set.Add(r)
				nodeSpecs = append(nodeSpecs, bridge.NodeSpec{Name: name, NodeID: i + 1, State: resource.StatusIdle})
			}
		}

		log.Logger.Info().Int("nodes", set.Len()).Bool("simulation_mode", cfg.SimulationMode).Msg("fleet loaded")

		br := bridge.NewSimulator(nodeSpecs)

		mgr := scheduler.New(set, br)
		mgr.StartRefreshLoop()
		defer mgr.StopRefreshLoop()

		collector := metrics.NewCollector(set, mgr.Reservations())
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("fleet", true, "loaded")
		metrics.RegisterComponent("bridge", true, "simulator")
		metrics.RegisterComponent("refresh", true, "running")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		errCh := make(chan error, 1)
		go func() {
			log.Logger.Info().Str("addr", metricsAddr).Msg("metrics server listening")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		case err := <-errCh:
			log.Logger.Error().Err(err).Msg("metrics server failed")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().String("hostfile", "", "Path to newline-delimited hostfile (overrides config's hostfile)")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
}
