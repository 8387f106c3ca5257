package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/config"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/auth"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository/postgres"
	"github.com/jackc/pgx/v5"
)

const (
	defaultMembers = 50
	openingCredit  = 120 // two hours
	printedTokens  = 5
)

var tags = []string{"go", "sql", "python", "guitar", "spanish", "cooking", "math", "drawing"}

func main() {
	cfg := config.Load()
	total := defaultMembers
	if raw := os.Getenv("SEED_MEMBERS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			log.Fatalf("invalid SEED_MEMBERS %q", raw)
		}
		total = n
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer conn.Close(ctx)

	log.Println("--- Seeding Database ---")
	if _, err := conn.Exec(ctx, postgres.Schema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM members").Scan(&count); err != nil {
		log.Fatalf("Failed to count members: %v", err)
	}
	if count > 0 {
		log.Printf("Database already has %d members. Skipping.", count)
		return
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	ids, err := seed(ctx, tx, total)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit seed: %v", err)
	}
	log.Printf("Seeded %d tags and %d members with %d minutes each.", len(tags), len(ids), openingCredit)

	for i, id := range ids {
		if i == printedTokens {
			break
		}
		token, err := auth.GenerateToken(id, []byte(cfg.JWTSecret), 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		fmt.Printf("member %d: %s\n", id, token)
	}
}

// seed writes the system member, tags, members, their skills and one opening top-up
// entry per member. Balances match the transaction log from the start.
func seed(ctx context.Context, tx pgx.Tx, total int) ([]int64, error) {
	now := time.Now().UTC()

	var systemID int64
	if err := tx.QueryRow(ctx,
		"INSERT INTO members (username, created_at) VALUES ('system', $1) RETURNING id", now,
	).Scan(&systemID); err != nil {
		return nil, fmt.Errorf("insert system member: %w", err)
	}
	if systemID != 1 {
		log.Printf("system member got id %d; set SYSTEM_MEMBER_ID accordingly", systemID)
	}

	tagRows := make([][]any, len(tags))
	for i, name := range tags {
		tagRows[i] = []any{name}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tags"}, []string{"name"}, pgx.CopyFromRows(tagRows)); err != nil {
		return nil, fmt.Errorf("copy tags: %w", err)
	}

	memberRows := make([][]any, total)
	for i := range memberRows {
		memberRows[i] = []any{fmt.Sprintf("member%03d", i+1), int64(openingCredit), int64(0), now}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"members"},
		[]string{"username", "available", "held", "created_at"}, pgx.CopyFromRows(memberRows)); err != nil {
		return nil, fmt.Errorf("copy members: %w", err)
	}

	rows, err := tx.Query(ctx, "SELECT id FROM members WHERE id <> $1 ORDER BY id", systemID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, "SELECT id FROM tags ORDER BY id")
	if err != nil {
		return nil, err
	}
	tagIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}

	credits := make([][]any, 0, len(ids))
	skills := make([][]any, 0, len(ids)*2)
	for i, id := range ids {
		credits = append(credits, []any{systemID, id, int64(openingCredit), string(models.KindTopUp), now})
		skills = append(skills,
			[]any{id, tagIDs[i%len(tagIDs)]},
			[]any{id, tagIDs[(i+3)%len(tagIDs)]})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"transactions"},
		[]string{"from_member_id", "to_member_id", "amount", "kind", "created_at"}, pgx.CopyFromRows(credits)); err != nil {
		return nil, fmt.Errorf("copy opening credits: %w", err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"member_skills"},
		[]string{"member_id", "tag_id"}, pgx.CopyFromRows(skills)); err != nil {
		return nil, fmt.Errorf("copy skills: %w", err)
	}
	return ids, nil
}
