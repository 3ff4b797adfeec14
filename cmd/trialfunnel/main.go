package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/TrialFunnel/app/repository"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/cache"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/config"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/database"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/env"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/router"
)

func main() {
	app, cfg, queue := NewApplication()

	queue.Start()
	defer queue.Stop()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Errorf("Shutdown failed: %v", err)
		}
	}()

	if err := app.Listen(cfg.ListenAddr()); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *config.Config, *jobqueue.Queue) {
	env.SetupEnvFile()
	cfg := config.MustLoad()
	if cfg.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	database.SetupDatabase(cfg)
	repos := repository.NewFactory(database.GetDB()).GetRepositories()
	client := cache.SetupCache(cfg)

	wiring, err := router.NewDependencies(cfg, repos, client, router.Providers{})
	if err != nil {
		panic(err)
	}

	// init fiber app
	app := fiber.New(router.AppConfig(cfg))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app, wiring.Dependencies)

	return app, cfg, wiring.Queue
}
