package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/museyou/gongu-go/internal/domain"
)

type PerformanceRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *PerformanceRepo) With(db DB) *PerformanceRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PerformanceRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const perfColumns = `id, title, category, venue, district, price, image_url,
	starts_at, ends_at`

func (r *PerformanceRepo) List(ctx context.Context, filter domain.PerformanceFilter) ([]domain.Performance, error) {
	const op = "postgres.PerformanceRepo.List"

	db := r.handle()

	var (
		where []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.District != "" {
		where = append(where, "district = "+arg(filter.District))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %s OR venue ILIKE %s)", p, p))
	}

	q := "SELECT " + perfColumns + " FROM performances"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY starts_at"

	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Performance
	for rows.Next() {
		var p domain.Performance
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Category, &p.Venue, &p.District,
			&p.Price, &p.ImageURL, &p.StartsAt, &p.EndsAt,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *PerformanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Performance, error) {
	const op = "postgres.PerformanceRepo.GetByID"

	db := r.handle()

	var p domain.Performance
	err := db.QueryRow(ctx,
		"SELECT "+perfColumns+" FROM performances WHERE id = $1", id,
	).Scan(
		&p.ID, &p.Title, &p.Category, &p.Venue, &p.District,
		&p.Price, &p.ImageURL, &p.StartsAt, &p.EndsAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &p, nil
}

func (r *PerformanceRepo) Create(ctx context.Context, p *domain.Performance) error {
	const op = "postgres.PerformanceRepo.Create"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO performances(id, title, category, venue, district,
			price, image_url, starts_at, ends_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Title, p.Category, p.Venue, p.District,
		p.Price, p.ImageURL, p.StartsAt, p.EndsAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}
