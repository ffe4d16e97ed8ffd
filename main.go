package main

import (
	"log"
	"os"
	"time"

	"sensaygw/internal/api"
	"sensaygw/internal/auth"
	"sensaygw/internal/config"
	"sensaygw/internal/gateway"
	"sensaygw/internal/redis"
	"sensaygw/internal/sensay"
	"sensaygw/internal/storage"
	"sensaygw/internal/tasks"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("SENSAYGW_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	dbType := os.Getenv("SENSAYGW_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// The token cache is optional; without redis, validation hits the database.
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, session tokens served from database: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	upstream, err := sensay.NewClient(cfg.Sensay)
	if err != nil {
		log.Fatalf("init sensay client: %v", err)
	}

	store := tasks.NewStore(db)
	gw := gateway.New(store, upstream)

	ttl := time.Duration(cfg.BasicConfig.AuthTokenTTLMins) * time.Minute
	authService := auth.NewService(db, rdb, ttl)

	handlers := api.NewHandler(gw, store, authService)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
