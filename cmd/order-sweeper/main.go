package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/OrderBox/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpOpts := sweeperHTTPOpts{
		httpAddr:    cfg.OrderBox.SweeperHTTPAddr,
		swaggerPath: os.Getenv("swaggerPath"),
	}

	if err := RunOrderSweeper(ctx, cfg, defaultSweeperFactories(), httpOpts); err != nil && err != context.Canceled {
		panic(err)
	}
}
