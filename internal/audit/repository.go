package audit

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads the audit log from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSQL = `SELECT a."id", a."timestamp", a."itemId", i."sku", i."name", a."action"::TEXT, a."quantityChange"
	FROM "AuditLog" a
	JOIN "InventoryItem" i ON i."id" = a."itemId"
	WHERE i."organizationId" = $1
	  AND ($2::TEXT IS NULL OR a."itemId" = $2)
	  AND ($3::TEXT IS NULL OR a."action"::TEXT = $3)
	  AND ($4::TIMESTAMPTZ IS NULL OR a."timestamp" >= $4)
	  AND ($5::TIMESTAMPTZ IS NULL OR a."timestamp" < $5)
	ORDER BY a."timestamp" DESC, a."id" DESC`

// TimelineWindow returns limit rows starting at offset.
func (r *PGRepository) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSQL+` LIMIT $6 OFFSET $7`, timelineArgs(f, limit, offset)...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// TimelineAll returns every matching row.
func (r *PGRepository) TimelineAll(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSQL, timelineArgs(f)...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func timelineArgs(f TimelineFilters, extra ...any) []any {
	args := []any{f.OrganizationID, optionalText(f.ItemID), optionalText(f.Action), toPgTime(f.From), toPgTime(f.To)}
	return append(args, extra...)
}

func collectRows(rows pgx.Rows) ([]TimelineRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var out TimelineRow
		err := row.Scan(&out.ID, &out.At, &out.ItemID, &out.SKU, &out.ItemName, &out.Action, &out.QuantityChange)
		return out, err
	})
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
