package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"tinyex.com/internal/account"
	"tinyex.com/internal/conf"
	"tinyex.com/internal/engine"
	"tinyex.com/internal/session"
	"tinyex.com/internal/stress"
	"tinyex.com/pkg/logger"
)

var configFile = flag.String("f", "", "config file, default config/stress.yaml")

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, _, err := conf.Load("stress", *configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	seed := cfg.Stress.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	accts := account.NewRegistry(account.Config{InitialCash: cfg.Accounts.InitialCash, InitialShares: cfg.Accounts.InitialShares})
	eng := engine.New(cfg.Engine.Engine(), accts, accts)
	defer eng.Stop()
	for _, t := range cfg.Instruments {
		if err := eng.ListInstrument(t); err != nil {
			logger.Fatal(ctx, "list instrument", zap.String("ticker", t), zap.Error(err))
		}
	}

	sc := cfg.Stress
	rep, err := stress.Run(ctx, stress.Config{
		Tickers:     cfg.Instruments,
		Users:       sc.Users,
		Actions:     sc.Actions,
		Workers:     sc.Workers,
		Rate:        sc.Rate,
		Burst:       sc.Burst,
		LimitWeight: sc.LimitWeight,
		MaxPrice:    sc.MaxPrice,
		MaxQty:      sc.MaxQty,
		Seed:        seed,
	}, eng, accts, session.Options{EnforceFunds: cfg.Accounts.EnforceFunds, Timeout: cfg.Engine.SubmitTimeout})
	if err != nil {
		logger.Error(ctx, "stress run stopped", zap.Error(err))
	}

	// results are written even for an interrupted run
	if err := stress.WriteResults(context.WithoutCancel(ctx), sc.ResultsDir, cfg.Instruments, rep, eng); err != nil {
		logger.Fatal(ctx, "write results", zap.Error(err))
	}
	logger.Info(ctx, "results written",
		zap.String("dir", sc.ResultsDir),
		zap.Uint64("seed", seed),
		zap.Int64("executed", rep.Executed),
		zap.Int64("rejected", rep.Rejected),
		zap.Duration("elapsed", rep.Elapsed),
	)
}
