package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// DocumentRepo persists uploaded document metadata. Bytes live in object storage.
type DocumentRepo struct{ Pool PgxPool }

// NewDocumentRepo constructs a DocumentRepo with the given pool.
func NewDocumentRepo(p PgxPool) *DocumentRepo { return &DocumentRepo{Pool: p} }

// Create stores a document row and returns its id (generates one if empty).
func (r *DocumentRepo) Create(ctx domain.Context, d domain.Document) (string, error) {
	ctx, span := otel.Tracer("repo.documents").Start(ctx, "documents.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "documents"),
	)
	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO documents (id, filename, mime, size, storage_key, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, id, d.Filename, d.MIME, d.Size, d.StorageKey, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=document.create: %w", err)
	}
	return id, nil
}

// Get loads a document by id.
func (r *DocumentRepo) Get(ctx domain.Context, id string) (domain.Document, error) {
	ctx, span := otel.Tracer("repo.documents").Start(ctx, "documents.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "documents"),
	)
	q := `SELECT id, filename, mime, size, storage_key, created_at FROM documents WHERE id=$1`
	var d domain.Document
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&d.ID, &d.Filename, &d.MIME, &d.Size, &d.StorageKey, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("op=document.get: %w", domain.ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("op=document.get: %w", err)
	}
	return d, nil
}
