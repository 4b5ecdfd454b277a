package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museyou/gongu-go/internal/domain"
	"github.com/museyou/gongu-go/internal/repository"
)

func seedPerformance(title, category, district string) domain.Performance {
	return domain.Performance{
		ID:       uuid.New(),
		Title:    title,
		Category: category,
		Venue:    "예술의전당",
		District: district,
		Price:    "50,000원",
		StartsAt: time.Now().Add(30 * 24 * time.Hour),
		EndsAt:   time.Now().Add(60 * 24 * time.Hour),
	}
}

func seedCampaign(perf domain.Performance, target, rate int) domain.GroupPurchase {
	now := time.Now()
	original := domain.ParsePrice(perf.Price)
	return domain.GroupPurchase{
		ID:                 uuid.New(),
		PerformanceID:      perf.ID,
		Performance:        perf.Snapshot(),
		Title:              perf.Title + " 공구",
		TargetParticipants: target,
		DiscountRate:       rate,
		OriginalPrice:      original,
		DiscountedPrice:    domain.DiscountedPrice(original, rate),
		Status:             domain.StatusRecruiting,
		Deadline:           now.Add(7 * 24 * time.Hour),
		CreatorID:          uuid.New(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func participant(count int) domain.Participant {
	uid := uuid.New()
	return domain.Participant{
		ID:               uuid.New(),
		UserID:           uid,
		User:             domain.UserRef{ID: uid, Name: "tester"},
		ParticipantCount: count,
		JoinedAt:         time.Now(),
	}
}

func TestJoinCompletesAndCancelReverts(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{})

	perf := seedPerformance("오페라의 유령", "뮤지컬", "서초구")
	g := seedCampaign(perf, 10, 20)
	s.Seed([]domain.Performance{perf}, []domain.GroupPurchase{g})

	repo := s.GroupPurchases()

	first := participant(5)
	got, err := repo.Join(ctx, g.ID, first)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CurrentParticipants)
	assert.Equal(t, domain.StatusRecruiting, got.Status)
	assert.Equal(t, 50, got.Progress)

	second := participant(5)
	got, err = repo.Join(ctx, g.ID, second)
	require.NoError(t, err)
	assert.Equal(t, 10, got.CurrentParticipants)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)

	// a completed campaign no longer accepts joins
	_, err = repo.Join(ctx, g.ID, participant(1))
	assert.ErrorIs(t, err, repository.ErrNotRecruiting)

	// dropping under target reopens recruiting
	got, err = repo.CancelJoin(ctx, g.ID, second.UserID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CurrentParticipants)
	assert.Equal(t, domain.StatusRecruiting, got.Status)
}

func TestJoinGuards(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{})

	perf := seedPerformance("헤드윅", "뮤지컬", "종로구")
	open := seedCampaign(perf, 10, 15)
	expired := seedCampaign(perf, 10, 15)
	expired.Deadline = time.Now().Add(-time.Hour)
	s.Seed([]domain.Performance{perf}, []domain.GroupPurchase{open, expired})

	repo := s.GroupPurchases()

	p := participant(2)
	_, err := repo.Join(ctx, open.ID, p)
	require.NoError(t, err)

	// same user cannot join twice without cancelling
	_, err = repo.Join(ctx, open.ID, domain.Participant{
		ID:               uuid.New(),
		UserID:           p.UserID,
		ParticipantCount: 1,
		JoinedAt:         time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyJoined)

	_, err = repo.Join(ctx, expired.ID, participant(1))
	assert.ErrorIs(t, err, repository.ErrDeadlinePassed)

	_, err = repo.Join(ctx, uuid.New(), participant(1))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.CancelJoin(ctx, open.ID, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotParticipant)
}

func TestTerminalStatusNeverFlips(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{})

	perf := seedPerformance("캣츠", "뮤지컬", "송파구")
	g := seedCampaign(perf, 2, 10)
	s.Seed([]domain.Performance{perf}, []domain.GroupPurchase{g})

	repo := s.GroupPurchases()

	closed := domain.StatusClosed
	got, err := repo.Update(ctx, g.ID, domain.Patch{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)

	_, err = repo.Join(ctx, g.ID, participant(5))
	assert.ErrorIs(t, err, repository.ErrNotRecruiting)
}

func TestUpdateTargetBelowCurrent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{})

	perf := seedPerformance("레미제라블", "뮤지컬", "구로구")
	g := seedCampaign(perf, 10, 25)
	s.Seed([]domain.Performance{perf}, []domain.GroupPurchase{g})

	repo := s.GroupPurchases()

	_, err := repo.Join(ctx, g.ID, participant(6))
	require.NoError(t, err)

	below := 5
	_, err = repo.Update(ctx, g.ID, domain.Patch{TargetParticipants: &below})
	assert.ErrorIs(t, err, repository.ErrTargetBelowCurrent)

	// lowering the target to exactly the sum completes the campaign
	exact := 6
	got, err := repo.Update(ctx, g.ID, domain.Patch{TargetParticipants: &exact})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestDeleteGuardedByParticipants(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{})

	perf := seedPerformance("시카고", "뮤지컬", "중구")
	g := seedCampaign(perf, 10, 20)
	s.Seed([]domain.Performance{perf}, []domain.GroupPurchase{g})

	repo := s.GroupPurchases()

	p := participant(3)
	_, err := repo.Join(ctx, g.ID, p)
	require.NoError(t, err)

	err = repo.Delete(ctx, g.ID)
	assert.ErrorIs(t, err, repository.ErrHasParticipants)

	_, err = repo.CancelJoin(ctx, g.ID, p.UserID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, g.ID))

	_, err = repo.GetByID(ctx, g.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListFilterAndSort(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{})

	musical := seedPerformance("위키드", "뮤지컬", "구로구")
	concert := seedPerformance("서울재즈페스티벌", "콘서트", "송파구")

	a := seedCampaign(musical, 10, 30)
	a.CreatedAt = time.Now().Add(-2 * time.Hour)
	b := seedCampaign(musical, 10, 10)
	b.CreatedAt = time.Now().Add(-1 * time.Hour)
	c := seedCampaign(concert, 10, 20)
	c.CreatedAt = time.Now()

	s.Seed([]domain.Performance{musical, concert}, []domain.GroupPurchase{a, b, c})

	repo := s.GroupPurchases()

	out, err := repo.List(ctx, domain.Filter{Category: "뮤지컬"}, domain.SortNewest)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, b.ID, out[0].ID)
	assert.Equal(t, a.ID, out[1].ID)

	out, err = repo.List(ctx, domain.Filter{}, domain.SortDiscount)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, a.ID, out[0].ID)
	assert.Equal(t, c.ID, out[1].ID)
	assert.Equal(t, b.ID, out[2].ID)

	out, err = repo.List(ctx, domain.Filter{MinDiscountRate: 20}, domain.SortNewest)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = repo.List(ctx, domain.Filter{Search: "위키드"}, domain.SortNewest)
	require.NoError(t, err)
	require.Len(t, out, 2) // both campaigns snapshot the same performance
}

func TestCountsByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{})

	perf := seedPerformance("맘마미아", "뮤지컬", "용산구")

	r1 := seedCampaign(perf, 10, 10)
	r2 := seedCampaign(perf, 10, 10)
	done := seedCampaign(perf, 10, 10)
	done.Status = domain.StatusCompleted
	closed := seedCampaign(perf, 10, 10)
	closed.Status = domain.StatusClosed

	s.Seed([]domain.Performance{perf}, []domain.GroupPurchase{r1, r2, done, closed})

	sc, err := s.GroupPurchases().CountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sc.Recruiting)
	assert.Equal(t, int64(1), sc.Completed)
	assert.Equal(t, int64(1), sc.Closed)
	assert.Equal(t, int64(4), sc.Total)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap.json")

	perf := seedPerformance("노트르담 드 파리", "뮤지컬", "서초구")
	g := seedCampaign(perf, 10, 20)

	s1 := NewStore(Config{SnapshotPath: path})
	s1.Seed([]domain.Performance{perf}, []domain.GroupPurchase{g})

	p := participant(4)
	_, err := s1.GroupPurchases().Join(ctx, g.ID, p)
	require.NoError(t, err)

	// a fresh store over the same file sees the mutated state
	s2 := NewStore(Config{SnapshotPath: path})

	got, err := s2.GroupPurchases().GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.CurrentParticipants)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, p.UserID, got.Participants[0].UserID)

	// the join record survives, so a repeat join still conflicts
	_, err = s2.GroupPurchases().Join(ctx, g.ID, domain.Participant{
		ID:               uuid.New(),
		UserID:           p.UserID,
		ParticipantCount: 1,
		JoinedAt:         time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyJoined)
}

func TestSnapshotCorruptFileIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStore(Config{SnapshotPath: path})

	out, err := s.GroupPurchases().List(context.Background(), domain.Filter{}, domain.SortNewest)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLatencyHonorsContext(t *testing.T) {
	s := NewStore(Config{Latency: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.GroupPurchases().List(ctx, domain.Filter{}, domain.SortNewest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
