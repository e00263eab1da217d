package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamepricetracker/internal/client"
	"gamepricetracker/internal/configuration"
	"gamepricetracker/internal/cron"
	"gamepricetracker/internal/database"
	"gamepricetracker/internal/logger"
	"gamepricetracker/internal/misc"
	"gamepricetracker/internal/model"
	"gamepricetracker/internal/pricecache"
	"gamepricetracker/internal/refresh"
	"gamepricetracker/internal/server"
)

func main() {
	if err := runApp(); err != nil {
		os.Exit(1)
	}
}

func runApp() error {
	appContext, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logOutput := io.Writer(os.Stdout)
	appLogger := logger.NewLogger(logger.LevelInfo, logOutput, os.Stderr)

	defer func() {
		if r := recover(); r != nil {
			appLogger.Errorf("APPLICATION CRASHED: %+v", r)
		}
	}()

	config, err := configuration.GetConfig("config.toml")
	if err != nil {
		appLogger.Error("Error getting configuration from config.toml:", err)
		return err
	}

	if config.LogToFile {
		logFile, err := os.OpenFile("gamepricetracker.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			appLogger.Error("Error opening log file:", err)
			return err
		}
		defer func() {
			if err := logFile.Close(); err != nil {
				appLogger.Error("Error closing log file:", err)
			}
		}()
		logOutput = io.MultiWriter(logOutput, logFile)
	}
	appLogger = logger.NewLogger(config.LogLevel, logOutput, nil)

	if config.LogLevel >= logger.LevelDebug {
		conf, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			appLogger.Error("Error marshalling Config to JSON:", err)
			return err
		}
		appLogger.Debugf("Config:\n%s", conf)
	}

	appLogger.Info("Connecting to DB at", config.DatabaseURI)
	dbConn, err := database.ConnectDB(appContext, config.DatabaseURI)
	if err != nil {
		appLogger.Error("Error connecting to DB:", err)
		return err
	}
	defer func() {
		if err := dbConn.Disconnect(context.Background()); err != nil {
			appLogger.Error("Error disconnecting from DB:", err)
		}
	}()
	db := database.Database{Database: dbConn.Database(database.Name)}

	appLogger.Info("Connecting to Redis at", config.RedisAddress)
	redisConn, err := database.ConnectRedis(appContext, config.RedisAddress)
	if err != nil {
		appLogger.Error("Error connecting to Redis:", err)
		return err
	}
	defer func() {
		if err := redisConn.Close(); err != nil {
			appLogger.Error("Error closing Redis connection:", err)
		}
	}()
	tags := database.RedisCache{Redis: redisConn}

	rnd := misc.NewRand(0)
	storefront := client.Client{
		Client:          &http.Client{Timeout: 15 * time.Second},
		Rand:            rnd,
		Logger:          appLogger,
		NintendoCountry: config.NintendoCountry,
		NintendoLang:    config.NintendoLang,
		SteamCountry:    config.SteamCountry,
		SteamLang:       config.SteamLang,
	}

	prices := pricecache.New(db, tags, storefront.Fetchers(), appLogger)
	defer prices.Wait()

	refresher := refresh.Refresher{
		Store:  db,
		Client: storefront,
		Tags:   tags,
		Rand:   rnd,
		Logger: appLogger,
		Config: refresh.Config{
			BatchSizes: map[model.Platform]int{
				model.PlatformNintendo:    config.NintendoBatchSize,
				model.PlatformPlayStation: config.PlayStationBatchSize,
				model.PlatformPC:          config.SteamBatchSize,
			},
			ItemDelayMin: config.ItemDelayMin,
			ItemDelayMax: config.ItemDelayMax,
			BatchDelay:   config.BatchDelay,
		},
	}

	srv := server.Server{
		Prices: prices,
		Cron: &cron.Controller{
			Refresher: refresher,
			Tags:      tags,
			Delay:     config.PipelineDelay,
			Logger:    appLogger,
		},
		Logger:            appLogger,
		AuthSecretKey:     config.AuthSecretKey,
		CronSecretHash:    config.CronSecretHash,
		NintendoLocale:    config.NintendoLocale(),
		PlayStationLocale: config.PlayStationLocale,
	}

	appLogger.Info("Starting fetcher with interval:", config.FetchDataInterval)
	go srv.FetchDataInInterval(appContext, time.NewTicker(config.FetchDataInterval))

	httpSrv := &http.Server{
		Handler:      srv.Router(),
		Addr:         config.ServerAddress,
		WriteTimeout: 15 * time.Minute,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		<-appContext.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			appLogger.Error("Error shutting down server:", err)
		}
	}()

	appLogger.Info("Serving on", httpSrv.Addr)
	if err = httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		appLogger.Error("Error serving:", err)
		return err
	}
	return nil
}
