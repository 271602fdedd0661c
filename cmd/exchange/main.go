package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"tinyex.com/internal/app"
	"tinyex.com/internal/conf"
	"tinyex.com/internal/session"
	"tinyex.com/pkg/config"
	"tinyex.com/pkg/logger"
)

var (
	configFile = flag.String("f", "", "config file, default config/exchange.yaml")
	user       = flag.String("u", "John", "trader name of this session")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := conf.Load("exchange", *configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the prompt, logs go to a file
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join("logs", cfg.Name+".log")
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "log dir: %v\n", err)
		os.Exit(1)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	logger.InitWriter(cfg.Name, cfg.Log.Level, zapcore.AddSync(f))
	defer logger.Sync()

	// only the log level is reloadable
	var live conf.Config
	config.Watch(v, &live, func() {
		if live.Log.Level != "" {
			logger.SetLevel(live.Log.Level)
			logger.Info(context.Background(), "log level changed", zap.String("level", live.Log.Level))
		}
	})

	a, err := app.New(cfg)
	if err != nil {
		logger.Error(ctx, "init exchange", zap.Error(err))
		fmt.Fprintf(os.Stderr, "init exchange: %v\n", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		logger.Error(ctx, "start exchange", zap.Error(err))
		fmt.Fprintf(os.Stderr, "start exchange: %v\n", err)
		os.Exit(1)
	}

	s := session.New(*user, a.Engine(), a.Accounts(), session.Options{
		EnforceFunds: cfg.Accounts.EnforceFunds,
		Timeout:      cfg.Engine.SubmitTimeout,
	})
	out := &syncWriter{w: os.Stdout}
	printTrades(ctx, out, a.Trades())
	runREPL(ctx, os.Stdin, out, s)

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Close(shutdownCtx)
}
