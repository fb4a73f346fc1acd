package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/schedulerd/pkg/api"
	"github.com/cuemby/schedulerd/pkg/config"
	"github.com/cuemby/schedulerd/pkg/engine"
	"github.com/cuemby/schedulerd/pkg/events"
	"github.com/cuemby/schedulerd/pkg/jobstats"
	"github.com/cuemby/schedulerd/pkg/leader"
	"github.com/cuemby/schedulerd/pkg/log"
	"github.com/cuemby/schedulerd/pkg/metrics"
	"github.com/cuemby/schedulerd/pkg/storage"
	"github.com/cuemby/schedulerd/pkg/taskqueue"
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
	Use:     "schedulerd",
	Short:   "schedulerd runs a fault-tolerant, raft-coordinated job scheduler node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("schedulerd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	runCmd.Flags().String("config", "", "Path to the node's YAML config file (required)")
	runCmd.Flags().String("admin-addr", "127.0.0.1:8081", "Admin HTTP surface bind address (health/ready/jobs/metrics)")
	_ = runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scheduler node",
	RunE:  runNode,
}

func runNode(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	adminAddr, _ := cmd.Flags().GetString("admin-addr")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.Format == "json"})
	log.Info(fmt.Sprintf("starting schedulerd node %s", cfg.NodeID))

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	history, err := jobstats.NewBoltHistoryStore(filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer history.Close()

	historySink := jobstats.NewEventSink(broker, history)
	historySink.Start()
	defer historySink.Stop()

	tasks := taskqueue.NewManager(nil, store)
	driver := taskqueue.NewInMemoryDriver(tasks)
	tasks.SetDriver(driver)

	eng := engine.New(engine.Config{
		ScheduleHorizon:      cfg.Engine.ScheduleHorizon,
		FailureRetryDelay:    cfg.Engine.FailureRetryDelay,
		DisableAfterFailures: cfg.Engine.DisableAfterFailures,
	}, store, tasks, broker)

	lf, err := leader.New(leader.Config{
		NodeID:             cfg.NodeID,
		BindAddr:           cfg.BindAddr,
		DataDir:            cfg.DataDir,
		Bootstrap:          cfg.Bootstrap,
		HeartbeatTimeout:   cfg.Raft.HeartbeatTimeout,
		ElectionTimeout:    cfg.Raft.ElectionTimeout,
		CommitTimeout:      cfg.Raft.CommitTimeout,
		LeaderLeaseTimeout: cfg.Raft.LeaderLeaseTimeout,
	}, store, eng, tasks)
	if err != nil {
		return fmt.Errorf("build leader lifecycle: %w", err)
	}
	lf.StartUp()
	defer lf.ShutDown()

	collector := metrics.NewCollector(eng, lf)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("raft", true, "started")
	metrics.RegisterComponent("taskqueue", true, "started")

	healthSrv := api.NewHealthServer(eng, lf)
	go func() {
		if err := healthSrv.Start(adminAddr); err != nil {
			log.Error(fmt.Sprintf("admin HTTP server stopped: %v", err))
		}
	}()
	log.Info(fmt.Sprintf("admin HTTP surface listening on %s", adminAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return nil
}
