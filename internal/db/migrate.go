package ledger

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

//go:embed migrations
var migrationFS embed.FS

const migrationTable = "schema_migrations"

// applyMigrations выполняет migrations/<dialect>/*.sql по одному разу, каждую в своей транзакции
func applyMigrations(ctx context.Context, drv driver, dialect string) error {
	root := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	b := sq.StatementBuilder.PlaceholderFormat(drv.placeholder())
	createSQL := "CREATE TABLE IF NOT EXISTS " + migrationTable + " (name TEXT PRIMARY KEY, applied_at BIGINT NOT NULL)"

	for _, file := range files {
		content, err := fs.ReadFile(migrationFS, path.Join(root, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := drv.begin(ctx)
		if err != nil {
			return err
		}
		err = applyOne(ctx, tx, b, createSQL, file, string(content))
		if err != nil {
			_ = tx.rollback(ctx)
			return fmt.Errorf("migration %s: %w", file, err)
		}
		if err = tx.commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func applyOne(ctx context.Context, tx txConn, b sq.StatementBuilderType, createSQL string, name string, content string) error {
	if _, err := tx.exec(ctx, createSQL); err != nil {
		return err
	}

	query, args, err := b.Select("COUNT(*)").From(migrationTable).Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return err
	}
	var applied int
	if err = tx.queryRow(ctx, query, args...).Scan(&applied); err != nil {
		return err
	}
	if applied > 0 {
		return nil
	}

	if _, err = tx.exec(ctx, content); err != nil {
		return err
	}

	query, args, err = b.Insert(migrationTable).
		Columns("name", "applied_at").
		Values(name, time.Now().Unix()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.exec(ctx, query, args...)
	return err
}
