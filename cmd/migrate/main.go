// cmd/migrate applies internal/store/schema.sql and creates this
// month's and next month's history partitions. Mirrors the teacher's
// scripts/init_db step-numbered, checkmark-logged runner, generalized
// to load its DDL from an embedded file instead of inline strings.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/rahullalw/smart-ev-analytics/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		migrateGetEnv("DB_USER", "ev_user"),
		migrateGetEnv("DB_PASSWORD", "ev_password"),
		migrateGetEnv("DB_HOST", "localhost"),
		migrateGetEnv("DB_PORT", "5432"),
		migrateGetEnv("DB_NAME", "ev_analytics"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ connected")

	step1Schema(ctx, conn)
	step2Partitions(ctx, conn, time.Now())
	step3Verify(ctx, conn)

	fmt.Println("\n✅ schema applied successfully")
}

func step1Schema(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: hot-state, history, and session tables ──")
	execOrFatal(ctx, conn, store.SchemaSQL, "schema.sql applied")
}

// step2Partitions creates this month's and next month's history
// partitions. Operators are expected to run this monthly (e.g. via
// cron) well ahead of the next boundary; there is no automatic
// partition creation at write time.
func step2Partitions(ctx context.Context, conn *pgx.Conn, now time.Time) {
	fmt.Println("\n── Step 2: monthly history partitions ──────────")

	for _, table := range []string{"meter_history", "vehicle_history"} {
		for i := 0; i < 2; i++ {
			monthStart := monthFloor(now).AddDate(0, i, 0)
			monthEnd := monthStart.AddDate(0, 1, 0)
			partName := fmt.Sprintf("%s_%s", table, monthStart.Format("2006_01"))

			execOrFatal(ctx, conn, fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s
				PARTITION OF %s
				FOR VALUES FROM ('%s') TO ('%s');
			`, partName, table, monthStart.Format(time.RFC3339), monthEnd.Format(time.RFC3339)),
				fmt.Sprintf("%-28s ← [%s, %s)", partName, monthStart.Format("2006-01-02"), monthEnd.Format("2006-01-02")),
			)
		}
	}
}

func step3Verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: verification ─────────────────────────")

	tables := []string{"meter_state", "vehicle_state", "meter_history", "vehicle_history", "vehicle_sessions"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}
}

func monthFloor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func migrateGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
