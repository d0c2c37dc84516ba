// Package pgkb stores the knowledge base in PostgreSQL. Entries keep their
// import order in a position column so ranking ties resolve the same way
// they would for the source file.
package pgkb

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/sift/internal/kb"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/kb/pgkb")

//go:embed schema.sql
var schema string

var columns = []string{"position", "id", "title", "category", "symptoms", "recommended_action"}

// Store reads and replaces knowledge base entries in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Load implements kb.Source.
func (s *Store) Load(ctx context.Context) ([]kb.Entry, error) {
	ctx, span := tracer.Start(ctx, "pgkb.Load", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, category, symptoms, recommended_action FROM kb_entries ORDER BY position`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query kb entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (kb.Entry, error) {
		var e kb.Entry
		err := row.Scan(&e.ID, &e.Title, &e.Category, &e.Symptoms, &e.RecommendedAction)
		return e, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan kb entries: %w", err)
	}

	span.SetAttributes(attribute.Int("sift.kb.entries", len(entries)))
	return entries, nil
}

// Replace swaps the stored knowledge base for entries in one transaction.
func (s *Store) Replace(ctx context.Context, entries []kb.Entry) error {
	ctx, span := tracer.Start(ctx, "pgkb.Replace", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "COPY"),
		attribute.Int("sift.kb.entries", len(entries)),
	))
	defer span.End()

	if err := s.replace(ctx, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Store) replace(ctx context.Context, entries []kb.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `DELETE FROM kb_entries`); err != nil {
		return fmt.Errorf("clear kb entries: %w", err)
	}

	rows := make([][]any, len(entries))
	for i, e := range entries {
		symptoms := e.Symptoms
		if symptoms == nil {
			symptoms = []string{}
		}
		rows[i] = []any{i, e.ID, e.Title, e.Category, symptoms, e.RecommendedAction}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"kb_entries"}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy kb entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
