package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/lyceum-cloud/uplink/internal/cli"
	"github.com/lyceum-cloud/uplink/internal/config"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
