package listings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/karsell/intake/internal/dbx"
	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/shared"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
	// sqlDB is set when db is a plain *sql.DB; Finalize then runs its
	// write and draft cleanup inside one transaction.
	sqlDB *sql.DB
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	r := &PostgresRepository{db: db}
	if sdb, ok := db.(*sql.DB); ok {
		r.sqlDB = sdb
	}
	return r
}

// SaveDraft upserts the draft row for snap. The partial unique index on
// (seller_id, vin) WHERE is_draft guarantees one open draft per vehicle,
// so a concurrent second save lands on the same row.
func (r *PostgresRepository) SaveDraft(ctx context.Context, snap *models.FormSnapshot) (string, error) {
	payload, err := models.MarshalSnapshot(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	id := snap.DraftID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO listings (id, seller_id, vin, make, model, year, mileage, transmission, title, snapshot, is_draft, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
		ON CONFLICT (seller_id, vin) WHERE is_draft
		DO UPDATE SET
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			year = EXCLUDED.year,
			mileage = EXCLUDED.mileage,
			transmission = EXCLUDED.transmission,
			title = EXCLUDED.title,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at
		RETURNING id;
	`
	title := models.ListingTitle(snap.Make, snap.Model, snap.Year)
	var draftID string
	err = r.db.QueryRowContext(ctx, query,
		id, snap.SellerID, snap.VIN, snap.Make, snap.Model, snap.Year,
		snap.Mileage, snap.Transmission, title, payload, time.Now(),
	).Scan(&draftID)
	if err != nil {
		return "", fmt.Errorf("upsert draft: %w", err)
	}
	return draftID, nil
}

func (r *PostgresRepository) GetDraft(ctx context.Context, sellerID, draftID string) (*models.Listing, error) {
	query := `
		SELECT id, seller_id, vin, title, is_draft, COALESCE(price, 0), COALESCE(reserve_price, 0),
		       COALESCE(mileage, 0), snapshot, updated_at
		FROM listings WHERE id = $1 AND seller_id = $2 AND is_draft
	`
	return r.scanListing(r.db.QueryRowContext(ctx, query, draftID, sellerID))
}

func (r *PostgresRepository) FindFinalizedByVIN(ctx context.Context, vin string) (*models.Listing, error) {
	query := `
		SELECT id, seller_id, vin, title, is_draft, COALESCE(price, 0), COALESCE(reserve_price, 0),
		       COALESCE(mileage, 0), snapshot, updated_at
		FROM listings WHERE vin = $1 AND NOT is_draft
	`
	return r.scanListing(r.db.QueryRowContext(ctx, query, vin))
}

func (r *PostgresRepository) scanListing(row *sql.Row) (*models.Listing, error) {
	var l models.Listing
	var snapshot []byte
	err := row.Scan(&l.ID, &l.SellerID, &l.VIN, &l.Title, &l.IsDraft,
		&l.Price, &l.ReservePrice, &l.Mileage, &snapshot, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	if len(snapshot) > 0 {
		var s models.FormSnapshot
		if err := json.Unmarshal(snapshot, &s); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		l.Snapshot = &s
	}
	return &l, nil
}

// Finalize writes the schema-shaped row with is_draft=false. Column names
// come from the filtered row, sorted for a stable statement shape.
func (r *PostgresRepository) Finalize(ctx context.Context, draftID string, row Row) (string, error) {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols)+1)
	var query string

	if draftID == "" {
		id := uuid.NewString()
		names := "id, is_draft"
		placeholders := "$1, FALSE"
		args = append(args, id)
		for i, c := range cols {
			names += ", " + c
			placeholders += fmt.Sprintf(", $%d", i+2)
			args = append(args, row[c])
		}
		query = fmt.Sprintf(
			`INSERT INTO listings (%s) VALUES (%s) RETURNING id`, names, placeholders)
	} else {
		set := "is_draft = FALSE"
		for i, c := range cols {
			set += fmt.Sprintf(", %s = $%d", c, i+1)
			args = append(args, row[c])
		}
		args = append(args, draftID)
		query = fmt.Sprintf(
			`UPDATE listings SET %s WHERE id = $%d RETURNING id`, set, len(cols)+1)
	}

	vin, _ := row["vin"].(string)

	var id string
	var err error
	if r.sqlDB != nil {
		// leftover open drafts for the vehicle vanish together with the
		// finalize write, or not at all
		err = dbx.WithTx(ctx, r.sqlDB, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
				return err
			}
			if vin == "" {
				return nil
			}
			_, err := tx.ExecContext(ctx,
				`DELETE FROM listings WHERE vin = $1 AND is_draft AND id <> $2`, vin, id)
			return err
		})
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", shared.ErrorDuplicateListing
		}
		if errors.Is(err, sql.ErrNoRows) {
			return "", shared.ErrorNotFound
		}
		return "", fmt.Errorf("finalize listing: %w", err)
	}
	return id, nil
}

// Columns lists the live columns of the listings table. A failure here is
// reported as a configuration error so callers degrade to the static
// allowlist instead of aborting the submission.
func (r *PostgresRepository) Columns(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_name = 'listings'
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: introspect listings schema: %v", shared.ErrorConfiguration, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: listings table has no visible columns", shared.ErrorConfiguration)
	}
	return cols, nil
}
