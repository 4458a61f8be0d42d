package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/YannKr/countersignal/internal/app"
	"github.com/YannKr/countersignal/internal/auth"
	"github.com/YannKr/countersignal/internal/config"
	"github.com/YannKr/countersignal/internal/logging"
)

func main() {
	// "server hash-key <key>" prints a value for OPERATOR_KEY_HASH
	if len(os.Args) == 3 && os.Args[1] == "hash-key" {
		hash, err := auth.HashKey(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg := config.Load()

	logger, closer := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFile)
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		closer.Close()
		os.Exit(1)
	}
}
