package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/daemon"
	"github.com/ZilDuck/nft-marketplace/internal/dic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const indexInterval = 5 * time.Second

func main() {
	config.Init("marketplaced")
	cfg := config.Get()

	container, err := dic.NewContainer(cfg)
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}

	market, err := container.GetMarketplace()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to start marketplace")
	}

	var runners []daemon.Runner
	if cfg.ElasticSearch.Enabled() {
		elastic, err := container.GetElastic()
		if err != nil {
			zap.L().With(zap.Error(err)).Fatal("Failed to start ES")
		}
		if err := elastic.InstallMappings(context.Background()); err != nil {
			zap.L().With(zap.Error(err)).Fatal("Failed to install ES mappings")
		}

		indexer, err := container.GetIndexer()
		if err != nil {
			zap.L().With(zap.Error(err)).Fatal("Failed to start indexer")
		}
		runners = append(runners, indexer)
	}

	zap.L().With(
		zap.String("marketplace", market.Address().Hex()),
		zap.String("network", cfg.Network),
		zap.String("port", cfg.HttpPort),
	).Info("Marketplace Started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := daemon.NewDaemon(container.GetSequencer(), container.GetEventManager(), container.GetApi().Router(), cfg.HttpPort, indexInterval, runners...)
	err = multierr.Append(d.Execute(ctx), container.Delete())
	if err != nil && !errors.Is(err, context.Canceled) {
		zap.L().With(zap.Error(err)).Error("Marketplace stopped with errors")
		os.Exit(1)
	}

	zap.L().Info("Marketplace Stopped")
}
