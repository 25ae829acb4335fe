package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"imageforge/internal/config"
	"imageforge/internal/database"
	"imageforge/internal/server"
	"imageforge/internal/services"
)

func main() {
	log := newLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load configuration", zap.Error(err))
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = database.GetDefaultDBPath()
	}

	db, err := database.Init(database.Config{
		Path:     dbPath,
		LogLevel: logger.Warn,
	})
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	svc, err := services.NewServices(cfg, db, log)
	if err != nil {
		log.Fatal("build services", zap.Error(err))
	}

	// Clean up files left behind by interrupted generations.
	if _, err := svc.Gallery.SweepOrphans(); err != nil {
		log.Warn("orphan sweep failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(net.JoinHostPort("", cfg.Port), svc, log)
	if err := srv.Run(ctx); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func newLogger() *zap.Logger {
	var log *zap.Logger
	var err error
	if database.IsDevelopment() {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}
