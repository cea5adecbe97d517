package main

import (
	"github.com/wfunc/mafiaserver/broadcast"
	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/monitor"
	"github.com/wfunc/mafiaserver/persistence"
	"github.com/wfunc/mafiaserver/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Init()
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if cfg.Logging.Development {
		logger.InitDevelopment()
	} else {
		logger.Init()
	}

	// Initialize Database
	var db persistence.Database
	switch cfg.Database.Driver {
	case "pq":
		db, err = persistence.NewPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	default:
		db, err = persistence.NewGormPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	}
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// Optional NATS relay for multi-instance room pushes
	var relay broadcast.Broadcaster
	if cfg.Nats.URL != "" {
		natsBroadcaster, err := broadcast.NewNatsBroadcaster(cfg.Nats.URL)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsBroadcaster.Close()
		relay = natsBroadcaster
	}

	// Metrics endpoint
	mon := monitor.NewMonitor("mafiaserver")
	mon.StartServer(cfg.Server.MetricsAddress)

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg, db, relay, mon)

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
