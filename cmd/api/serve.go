package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rahullalw/smart-ev-analytics/internal/analytics"
	"github.com/rahullalw/smart-ev-analytics/internal/auth"
	"github.com/rahullalw/smart-ev-analytics/internal/config"
	"github.com/rahullalw/smart-ev-analytics/internal/httpapi"
	"github.com/rahullalw/smart-ev-analytics/internal/logging"
	"github.com/rahullalw/smart-ev-analytics/internal/metrics"
	"github.com/rahullalw/smart-ev-analytics/internal/session"
	"github.com/rahullalw/smart-ev-analytics/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analytics and session HTTP API",
	Long: `Run the HTTP API that:
- Answers GET /analytics/performance/{vehicleId}
- Answers GET /analytics/vehicles/states
- Accepts operator-authenticated session start/end/bulk requests`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("db-host", "localhost", "Postgres host")
	serveCmd.Flags().String("db-port", "5432", "Postgres port")
	serveCmd.Flags().String("db-user", "ev_user", "Postgres user")
	serveCmd.Flags().String("db-password", "", "Postgres password")
	serveCmd.Flags().String("db-name", "ev_analytics", "Postgres database name")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	serveCmd.Flags().Duration("analytics-window", 24*time.Hour, "Trailing window for performance aggregation")

	_ = viper.BindPFlag("api.http.port", serveCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("api.db.host", serveCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("api.db.port", serveCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("api.db.user", serveCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("api.db.password", serveCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("api.db.name", serveCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("api.redis.addr", serveCmd.Flags().Lookup("redis-addr"))
	_ = viper.BindPFlag("api.analytics.window", serveCmd.Flags().Lookup("analytics-window"))
}

func runServe(_ *cobra.Command, _ []string) error {
	log := logging.New(getLogger())
	log.Info("starting analytics/session API")

	cfg := &config.Config{
		DBHost:              viper.GetString("api.db.host"),
		DBPort:              viper.GetString("api.db.port"),
		DBUser:              viper.GetString("api.db.user"),
		DBPassword:          viper.GetString("api.db.password"),
		DBName:              viper.GetString("api.db.name"),
		DBMaxConns:          20,
		RedisAddr:           viper.GetString("api.redis.addr"),
		AuthCacheTTLSeconds:  viper.GetInt("auth.cache_ttl_seconds"),
		ValidAPIKeys:        viper.GetStringSlice("auth.valid_operator_keys"),
		HTTPPort:            viper.GetString("api.http.port"),
	}
	if cfg.AuthCacheTTLSeconds <= 0 {
		cfg.AuthCacheTTLSeconds = 300
	}

	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		return err
	}
	defer db.Close()

	redisClient, err := store.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return err
	}
	defer redisClient.Close()

	sessions := session.NewService(db.Pool)
	window := viper.GetDuration("api.analytics.window")
	aggregator := analytics.NewAggregator(db.Pool, window)
	authenticator := auth.NewAuthenticator(cfg, redisClient)
	apiMetrics := metrics.NewAPIMetrics("ev_analytics")

	server := httpapi.NewServer(db, sessions, aggregator, authenticator, apiMetrics, log)

	log.Info("api server configuration",
		"http_port", cfg.HTTPPort,
		"db_host", cfg.DBHost,
		"db_name", cfg.DBName,
	)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Routes(),
	}

	log.Info("api server listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("api server error", "error", err)
		return err
	}

	log.Info("api server stopped")
	return nil
}
