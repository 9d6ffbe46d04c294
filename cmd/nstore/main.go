// Command nstore runs the persistent-memory storage engine benchmark:
// it loads a workload, drives per-partition workers against a chosen
// storage engine, and reports throughput. Grounded on the teacher's
// main.go (flag-based CLI, conf.Load, logger.InitLogger sequencing).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Legend147/nstore/internal/config"
	"github.com/Legend147/nstore/internal/coordinator"
	"github.com/Legend147/nstore/internal/engine"
	"github.com/Legend147/nstore/logger"
)

func main() {
	var (
		configPath string
		engineKind string
		benchKind  string
	)
	flag.StringVar(&configPath, "configPath", "", "path to an nstore.ini config file")
	flag.StringVar(&engineKind, "engine", "wal", "storage engine: wal | lsm")
	flag.StringVar(&benchKind, "bench", "ycsb", "benchmark kind: ycsb | tpcc")
	flag.Parse()

	cfg, err := config.New().Load(&config.CommandLineArgs{ConfigPath: configPath})
	if err != nil {
		fmt.Fprintln(os.Stderr, "nstore: failed to load config:", err)
		os.Exit(1)
	}

	switch engineKind {
	case "lsm":
		cfg.EngineKind = engine.KindLSM
	case "sp":
		cfg.EngineKind = engine.KindSP
	default:
		cfg.EngineKind = engine.KindWAL
	}
	switch benchKind {
	case "tpcc":
		cfg.BenchmarkKind = config.BenchmarkTPCC
	default:
		cfg.BenchmarkKind = config.BenchmarkYCSB
	}

	if err := logger.InitLogger(logger.LogConfig{LogLevel: "info"}); err != nil {
		fmt.Fprintln(os.Stderr, "nstore: failed to init logger:", err)
		os.Exit(1)
	}

	logger.Infof("nstore: starting run engine=%s benchmark=%s executors=%d parts=%d",
		cfg.EngineKind, benchKind, cfg.NumExecutors, cfg.NumParts)

	co := coordinator.New(*cfg)
	report, err := co.Run(context.Background())
	if err != nil {
		logger.Errorf("nstore: run failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("duration=%.3fs throughput=%.1f txn/s\n", report.DurationSeconds, report.Throughput)
}
