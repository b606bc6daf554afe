// ABOUTME: Seed utility provisioning a demo tenant with sample data
// ABOUTME: Writes straight into the tenant store and syncs the Redis counter

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/bus"
	"github.com/tidemark/driftsync/internal/oracle"
	"github.com/tidemark/driftsync/internal/store"
)

const (
	seedEmail    = "seed@driftsync.dev"
	seedPassword = "seed123456"
	seedTenant   = "seed_tenant"
)

func main() {
	if err := run(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	dataDir := envOr("DATA_DIR", "./data")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	ctx := context.Background()

	sdb, err := auth.OpenSystemDB(filepath.Join(dataDir, "system.db"), nil)
	if err != nil {
		return err
	}
	defer sdb.Close()

	user, err := sdb.Register(ctx, seedEmail, seedPassword, seedTenant)
	if err != nil {
		// Already seeded once; reuse the account.
		user, err = sdb.Login(ctx, seedEmail, seedPassword)
		if err != nil {
			return fmt.Errorf("creating or reusing seed user: %w", err)
		}
	}
	cyan.Printf("seed user %s (tenant %s)\n", user.Email, user.TenantID)

	stores := store.NewManager(dataDir, 4, nil)
	defer stores.CloseAll()
	ts, err := stores.Open(user.TenantID)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}

	start := time.Now()
	version, count, err := seedTenantData(ctx, ts)
	if err != nil {
		return err
	}

	// Bring the shared counter in line with the journal, then announce
	// the batch so connected sessions pull it.
	if err := rdb.HSet(ctx, oracle.VersionKey(user.TenantID), "v", version).Err(); err != nil {
		return fmt.Errorf("setting version counter: %w", err)
	}
	rdb.Publish(ctx, bus.Channel(user.TenantID), version)

	green.Printf("seeded %d records at version %d in %s\n", count, version, time.Since(start).Round(time.Millisecond))
	cyan.Printf("login with: %s / %s\n", seedEmail, seedPassword)
	return nil
}

// seedTenantData fills the store with demo projects, columns, cards and
// products, journaling everything at version 1 in one transaction.
func seedTenantData(ctx context.Context, ts *store.TenantStore) (int64, int, error) {
	const version = 1

	tx, err := ts.BeginTx(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning seed tx: %w", err)
	}
	defer tx.Rollback()

	count := 0
	journal := func(table, id string, payload any) error {
		count++
		return store.AppendChange(ctx, tx, store.Change{
			TableName: table, EntityID: id, Operation: store.OpInsert, Payload: payload,
		}, version)
	}

	projectIDs := make([]string, 3)
	for i := range projectIDs {
		id := uuid.New().String()
		name := fmt.Sprintf("Project %d", i+1)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO projects (id, name) VALUES (?, ?)", id, name); err != nil {
			return 0, 0, fmt.Errorf("inserting project: %w", err)
		}
		if err := journal("projects", id, map[string]string{"id": id, "name": name}); err != nil {
			return 0, 0, err
		}
		projectIDs[i] = id
	}

	columns := []struct {
		name  string
		color string
	}{
		{"backlog", "bg-gray-500"},
		{"todo", "bg-blue-500"},
		{"in_progress", "bg-yellow-500"},
		{"review", "bg-purple-500"},
		{"done", "bg-green-500"},
	}
	for _, projectID := range projectIDs {
		for pos, col := range columns {
			id := uuid.New().String()
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO kanban_columns (id, project_id, name, color, position) VALUES (?, ?, ?, ?, ?)",
				id, projectID, col.name, col.color, pos); err != nil {
				return 0, 0, fmt.Errorf("inserting column: %w", err)
			}
			if err := journal("kanban_columns", id, map[string]any{
				"id": id, "project_id": projectID, "name": col.name,
				"color": col.color, "position": pos,
			}); err != nil {
				return 0, 0, err
			}
		}
	}

	for i := range 25 {
		id := uuid.New().String()
		projectID := projectIDs[i%len(projectIDs)]
		colName := columns[i%len(columns)].name
		title := fmt.Sprintf("Card %02d", i+1)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO kanban_cards (id, project_id, column_name, title, position) VALUES (?, ?, ?, ?, ?)",
			id, projectID, colName, title, i); err != nil {
			return 0, 0, fmt.Errorf("inserting card: %w", err)
		}
		if err := journal("kanban_cards", id, map[string]any{
			"id": id, "project_id": projectID, "column_name": colName,
			"title": title, "position": i, "approval_status": "pending", "priority": "medium",
		}); err != nil {
			return 0, 0, err
		}
	}

	for i := range 20 {
		id := uuid.New().String()
		name := fmt.Sprintf("Product %02d", i+1)
		price := float64(i%10)*2.5 + 1.99
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO products (id, name, price) VALUES (?, ?, ?)", id, name, price); err != nil {
			return 0, 0, fmt.Errorf("inserting product: %w", err)
		}
		if err := journal("products", id, map[string]any{"id": id, "name": name, "price": price}); err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing seed tx: %w", err)
	}
	return version, count, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
