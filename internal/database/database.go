// Package database opens the postgres pool and the redis client the
// transaction engine runs on. Postgres is mandatory; redis degrades to
// nil (payload caching, token denylist and settlement queueing are
// skipped when it is absent).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

const pingTimeout = 5 * time.Second

// Connect opens the postgres pool from viper configuration and verifies
// it with a bounded ping. Pool limits default to values sized for the
// row-locking transfer workload: transfers hold two row locks per
// transaction, so the pool stays small to keep lock queues short.
func Connect() (*sql.DB, error) {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "sakubank")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		viper.GetString("database.host"),
		viper.GetString("database.port"),
		viper.GetString("database.user"),
		viper.GetString("database.password"),
		viper.GetString("database.name"),
		viper.GetString("database.ssl_mode"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(viper.GetInt("database.max_open_conns"))
	db.SetMaxIdleConns(viper.GetInt("database.max_idle_conns"))
	db.SetConnMaxLifetime(viper.GetDuration("database.conn_max_lifetime"))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Printf("[DB] Connected to %s/%s",
		viper.GetString("database.host"), viper.GetString("database.name"))
	return db, nil
}

// MustConnect is Connect for main: the engine cannot run without its
// ledger store, so a failed connection is fatal.
func MustConnect() *sql.DB {
	db, err := Connect()
	if err != nil {
		log.Fatalf("[DB] %v", err)
	}
	return db
}

// ConnectRedis opens the redis client used for payload caching, the JWT
// denylist and the settlement queue. Returns nil when redis is
// unreachable; callers treat a nil client as "those features are off".
func ConnectRedis() *redis.Client {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.host") + ":" + viper.GetString("redis.port"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[REDIS] Unreachable, continuing without redis: %v", err)
		rdb.Close()
		return nil
	}

	log.Printf("[REDIS] Connected to %s:%s",
		viper.GetString("redis.host"), viper.GetString("redis.port"))
	return rdb
}
