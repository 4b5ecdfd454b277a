package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/museyou/gongu-go/internal/domain"
	"github.com/museyou/gongu-go/internal/repository"
)

type GroupPurchaseRepo struct {
	store *Store
	pool  *pgxpool.Pool
	db    DB
}

func (r *GroupPurchaseRepo) With(db DB) *GroupPurchaseRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *GroupPurchaseRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const gpColumns = `id, performance_id, perf_title, perf_category, perf_venue,
	perf_district, perf_price, title, description, target_participants,
	current_participants, discount_rate, original_price, discounted_price,
	status, deadline, creator_id, creator_name, creator_email,
	created_at, updated_at`

func scanGroupPurchase(row pgx.Row) (*domain.GroupPurchase, error) {
	var g domain.GroupPurchase
	var status string

	err := row.Scan(
		&g.ID,
		&g.PerformanceID,
		&g.Performance.Title,
		&g.Performance.Category,
		&g.Performance.Venue,
		&g.Performance.District,
		&g.Performance.Price,
		&g.Title,
		&g.Description,
		&g.TargetParticipants,
		&g.CurrentParticipants,
		&g.DiscountRate,
		&g.OriginalPrice,
		&g.DiscountedPrice,
		&status,
		&g.Deadline,
		&g.CreatorID,
		&g.Creator.Name,
		&g.Creator.Email,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Status = domain.Status(status)
	g.Performance.ID = g.PerformanceID
	g.Creator.ID = g.CreatorID
	g.Derive()

	return &g, nil
}

func sortClause(sort domain.SortKey) string {
	switch sort {
	case domain.SortPopular:
		return "current_participants DESC, created_at DESC"
	case domain.SortDeadline:
		return "deadline ASC, created_at DESC"
	case domain.SortDiscount:
		return "discount_rate DESC, created_at DESC"
	default: // newest
		return "created_at DESC"
	}
}

// List returns all campaigns matching the filter in the requested order.
// Pagination is left to the caller.
func (r *GroupPurchaseRepo) List(
	ctx context.Context,
	filter domain.Filter,
	sort domain.SortKey,
) ([]domain.GroupPurchase, error) {
	const op = "postgres.GroupPurchaseRepo.List"

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
		where = append(where, "perf_category = "+arg(filter.Category))
	}
	if filter.District != "" {
		where = append(where, "perf_district = "+arg(filter.District))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.MinDiscountRate > 0 {
		where = append(where, "discount_rate >= "+arg(filter.MinDiscountRate))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(perf_title ILIKE %s OR perf_venue ILIKE %s)", p, p))
	}

	q := "SELECT " + gpColumns + " FROM group_purchases"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + sortClause(sort)

	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.GroupPurchase
	for rows.Next() {
		g, err := scanGroupPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// GetByID retrieves a campaign with its participant list hydrated.
func (r *GroupPurchaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.GroupPurchase, error) {
	const op = "postgres.GroupPurchaseRepo.GetByID"

	db := r.handle()

	g, err := r.getCore(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	parts, err := r.listParticipants(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	g.Participants = parts

	return g, nil
}

func (r *GroupPurchaseRepo) Create(ctx context.Context, g *domain.GroupPurchase) error {
	const op = "postgres.GroupPurchaseRepo.Create"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO group_purchases(
			id, performance_id, perf_title, perf_category, perf_venue,
			perf_district, perf_price, title, description, target_participants,
			current_participants, discount_rate, original_price, discounted_price,
			status, deadline, creator_id, creator_name, creator_email,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		g.ID, g.PerformanceID, g.Performance.Title, g.Performance.Category,
		g.Performance.Venue, g.Performance.District, g.Performance.Price,
		g.Title, g.Description, g.TargetParticipants,
		g.CurrentParticipants, g.DiscountRate, g.OriginalPrice, g.DiscountedPrice,
		string(g.Status), g.Deadline, g.CreatorID, g.Creator.Name, g.Creator.Email,
		g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Join inserts the participant record and settles the campaign counters in
// one serializable transaction.
func (r *GroupPurchaseRepo) Join(
	ctx context.Context,
	id uuid.UUID,
	p domain.Participant,
) (*domain.GroupPurchase, error) {
	const op = "postgres.GroupPurchaseRepo.Join"

	var out *domain.GroupPurchase

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		g, err := r.getCore(ctx, tx, id)
		if err != nil {
			return translateDBErr(err)
		}

		if g.Status != domain.StatusRecruiting {
			return repository.ErrNotRecruiting
		}
		if !g.Deadline.After(time.Now()) {
			return repository.ErrDeadlinePassed
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO participants(
				id, group_purchase_id, user_id, user_name, user_email,
				participant_count, message, joined_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, id, p.UserID, p.User.Name, p.User.Email,
			p.ParticipantCount, p.Message, p.JoinedAt,
		)
		if err != nil {
			if errors.Is(translateDBErr(err), repository.ErrConflict) {
				return repository.ErrAlreadyJoined
			}
			return translateDBErr(err)
		}

		out, err = r.settleCore(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// CancelJoin removes the user's record and settles the counters, reverting
// completed → recruiting when the sum drops under target.
func (r *GroupPurchaseRepo) CancelJoin(ctx context.Context, id, userID uuid.UUID) (*domain.GroupPurchase, error) {
	const op = "postgres.GroupPurchaseRepo.CancelJoin"

	var out *domain.GroupPurchase

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if _, err := r.getCore(ctx, tx, id); err != nil {
			return translateDBErr(err)
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM participants
			 WHERE group_purchase_id = $1 AND user_id = $2`,
			id, userID,
		)
		if err != nil {
			return translateDBErr(err)
		}

		if tag.RowsAffected() == 0 {
			return repository.ErrNotParticipant
		}

		out, err = r.settleCore(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Update applies a partial edit and re-derives the discounted price.
func (r *GroupPurchaseRepo) Update(
	ctx context.Context,
	id uuid.UUID,
	patch domain.Patch,
) (*domain.GroupPurchase, error) {
	const op = "postgres.GroupPurchaseRepo.Update"

	var out *domain.GroupPurchase

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		g, err := r.getCore(ctx, tx, id)
		if err != nil {
			return translateDBErr(err)
		}

		sum, err := r.sumParticipants(ctx, tx, id)
		if err != nil {
			return translateDBErr(err)
		}

		if patch.Title != nil {
			g.Title = *patch.Title
		}
		if patch.Description != nil {
			g.Description = *patch.Description
		}
		if patch.TargetParticipants != nil {
			if *patch.TargetParticipants < sum {
				return repository.ErrTargetBelowCurrent
			}
			g.TargetParticipants = *patch.TargetParticipants
		}
		if patch.DiscountRate != nil {
			g.DiscountRate = *patch.DiscountRate
		}
		if patch.Deadline != nil {
			g.Deadline = *patch.Deadline
		}
		if patch.Status != nil {
			g.Status = *patch.Status
		}

		g.DiscountedPrice = domain.DiscountedPrice(g.OriginalPrice, g.DiscountRate)
		g.UpdatedAt = time.Now()

		if _, err := tx.Exec(ctx,
			`UPDATE group_purchases
			 SET title = $2, description = $3, target_participants = $4,
				discount_rate = $5, discounted_price = $6, deadline = $7,
				status = $8, updated_at = $9
			 WHERE id = $1`,
			id, g.Title, g.Description, g.TargetParticipants,
			g.DiscountRate, g.DiscountedPrice, g.Deadline,
			string(g.Status), g.UpdatedAt,
		); err != nil {
			return translateDBErr(err)
		}

		// A raised target can drop a completed campaign back under it.
		out, err = r.settleCore(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Delete removes a campaign that nobody has joined.
func (r *GroupPurchaseRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.GroupPurchaseRepo.Delete"

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if _, err := r.getCore(ctx, tx, id); err != nil {
			return translateDBErr(err)
		}

		sum, err := r.sumParticipants(ctx, tx, id)
		if err != nil {
			return translateDBErr(err)
		}

		if sum > 0 {
			return repository.ErrHasParticipants
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM group_purchases WHERE id = $1`, id,
		); err != nil {
			return translateDBErr(err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *GroupPurchaseRepo) ListByCreator(ctx context.Context, userID uuid.UUID) ([]domain.GroupPurchase, error) {
	const op = "postgres.GroupPurchaseRepo.ListByCreator"

	db := r.handle()

	rows, err := db.Query(ctx,
		"SELECT "+gpColumns+` FROM group_purchases
		 WHERE creator_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.GroupPurchase
	for rows.Next() {
		g, err := scanGroupPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *GroupPurchaseRepo) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]domain.GroupPurchase, error) {
	const op = "postgres.GroupPurchaseRepo.ListByParticipant"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+gpQualified+`
		 FROM group_purchases g
		 JOIN participants p ON p.group_purchase_id = g.id
		 WHERE p.user_id = $1
		 ORDER BY p.joined_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.GroupPurchase
	for rows.Next() {
		g, err := scanGroupPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *GroupPurchaseRepo) CountsByStatus(ctx context.Context) (*domain.StatusCounts, error) {
	const op = "postgres.GroupPurchaseRepo.CountsByStatus"

	db := r.handle()

	var sc domain.StatusCounts
	err := db.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN status = 'recruiting' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0)
		 FROM group_purchases`,
	).Scan(&sc.Recruiting, &sc.InProgress, &sc.Completed, &sc.Closed, &sc.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	sc.Total = sc.Recruiting + sc.InProgress + sc.Completed + sc.Closed + sc.Cancelled

	return &sc, nil
}

// --- cores shared across transactions ---

func (r *GroupPurchaseRepo) getCore(ctx context.Context, db DB, id uuid.UUID) (*domain.GroupPurchase, error) {
	return scanGroupPurchase(db.QueryRow(ctx,
		"SELECT "+gpColumns+" FROM group_purchases WHERE id = $1", id,
	))
}

func (r *GroupPurchaseRepo) sumParticipants(ctx context.Context, db DB, id uuid.UUID) (int, error) {
	var sum int
	err := db.QueryRow(ctx,
		`SELECT COALESCE(SUM(participant_count), 0)
		 FROM participants
		 WHERE group_purchase_id = $1`,
		id,
	).Scan(&sum)
	return sum, err
}

func (r *GroupPurchaseRepo) listParticipants(ctx context.Context, db DB, id uuid.UUID) ([]domain.Participant, error) {
	rows, err := db.Query(ctx,
		`SELECT id, group_purchase_id, user_id, user_name, user_email,
			participant_count, message, joined_at
		 FROM participants
		 WHERE group_purchase_id = $1
		 ORDER BY joined_at`,
		id,
	)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(
			&p.ID,
			&p.GroupPurchaseID,
			&p.UserID,
			&p.User.Name,
			&p.User.Email,
			&p.ParticipantCount,
			&p.Message,
			&p.JoinedAt,
		); err != nil {
			return nil, err
		}
		p.User.ID = p.UserID
		out = append(out, p)
	}

	return out, rows.Err()
}

// settleCore recomputes the participant sum and reconciles the stored
// counter and status with it. Terminal statuses are left alone.
func (r *GroupPurchaseRepo) settleCore(ctx context.Context, db DB, id uuid.UUID) (*domain.GroupPurchase, error) {
	g, err := r.getCore(ctx, db, id)
	if err != nil {
		return nil, translateDBErr(err)
	}

	sum, err := r.sumParticipants(ctx, db, id)
	if err != nil {
		return nil, translateDBErr(err)
	}

	status := g.Status
	if !status.Terminal() {
		switch {
		case sum >= g.TargetParticipants && status == domain.StatusRecruiting:
			status = domain.StatusCompleted
		case sum < g.TargetParticipants && status == domain.StatusCompleted:
			status = domain.StatusRecruiting
		}
	}

	if sum != g.CurrentParticipants || status != g.Status {
		if _, err := db.Exec(ctx,
			`UPDATE group_purchases
			 SET current_participants = $2, status = $3, updated_at = $4
			 WHERE id = $1`,
			id, sum, string(status), time.Now(),
		); err != nil {
			return nil, translateDBErr(err)
		}
	}

	g, err = r.getCore(ctx, db, id)
	if err != nil {
		return nil, translateDBErr(err)
	}

	parts, err := r.listParticipants(ctx, db, id)
	if err != nil {
		return nil, translateDBErr(err)
	}

	g.Participants = parts

	return g, nil
}

// gpQualified is gpColumns with the group_purchases alias for joins.
var gpQualified = func() string {
	cols := strings.Split(gpColumns, ",")
	for i, c := range cols {
		cols[i] = "g." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}()
