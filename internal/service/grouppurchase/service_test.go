package grouppurchase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museyou/gongu-go/internal/domain"
	"github.com/museyou/gongu-go/internal/notify"
	"github.com/museyou/gongu-go/internal/repository/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(memory.Config{})
	svc := New(store, nil, notify.Nop{}, nil, Config{})
	return svc, store
}

func seedPerformance(store *memory.Store, price string) domain.Performance {
	p := domain.Performance{
		ID:       uuid.New(),
		Title:    "지킬 앤 하이드",
		Category: "뮤지컬",
		Venue:    "샤롯데씨어터",
		District: "송파구",
		Price:    price,
		StartsAt: time.Now().Add(30 * 24 * time.Hour),
		EndsAt:   time.Now().Add(90 * 24 * time.Hour),
	}
	store.Seed([]domain.Performance{p}, nil)
	return p
}

func actor(name string) domain.UserRef {
	return domain.UserRef{ID: uuid.New(), Name: name, Email: name + "@example.com"}
}

func TestCreateSnapshotsPerformance(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "50,000원")
	creator := actor("creator")

	g, err := svc.Create(ctx, creator, CreateInput{
		PerformanceID: perf.ID,
		Title:         "지킬 앤 하이드 같이 봐요",
		Target:        10,
		DiscountRate:  20,
		Deadline:      time.Now().Add(7 * 24 * time.Hour),
	}, "")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRecruiting, g.Status)
	assert.Equal(t, int64(50000), g.OriginalPrice)
	assert.Equal(t, int64(40000), g.DiscountedPrice)
	assert.Equal(t, 0, g.CurrentParticipants)
	assert.Equal(t, creator.ID, g.CreatorID)
	assert.Equal(t, perf.Title, g.Performance.Title)
}

func TestCreateFreePerformance(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "무료")

	g, err := svc.Create(ctx, actor("creator"), CreateInput{
		PerformanceID: perf.ID,
		Title:         "무료 공연 공구",
		Target:        5,
		DiscountRate:  10,
		Deadline:      time.Now().Add(time.Hour),
	}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(0), g.OriginalPrice)
	assert.Equal(t, int64(0), g.DiscountedPrice)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "50,000원")

	valid := CreateInput{
		PerformanceID: perf.ID,
		Title:         "ok",
		Target:        10,
		DiscountRate:  20,
		Deadline:      time.Now().Add(time.Hour),
	}

	in := valid
	in.Title = ""
	_, err := svc.Create(ctx, actor("a"), in, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = valid
	in.Target = 1
	_, err = svc.Create(ctx, actor("a"), in, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = valid
	in.DiscountRate = 60
	_, err = svc.Create(ctx, actor("a"), in, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = valid
	in.Deadline = time.Now().Add(-time.Minute)
	_, err = svc.Create(ctx, actor("a"), in, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = valid
	in.PerformanceID = uuid.New()
	_, err = svc.Create(ctx, actor("a"), in, "")
	assert.ErrorIs(t, err, ErrPerformanceNotFound)
}

func TestJoinLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "30,000원")
	creator := actor("creator")

	g, err := svc.Create(ctx, creator, CreateInput{
		PerformanceID: perf.ID,
		Title:         "공구",
		Target:        4,
		DiscountRate:  15,
		Deadline:      time.Now().Add(time.Hour),
	}, "")
	require.NoError(t, err)

	alice := actor("alice")
	bob := actor("bob")

	got, err := svc.Join(ctx, alice, g.ID, 2, "친구랑 갈게요", "")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentParticipants)
	assert.Equal(t, domain.StatusRecruiting, got.Status)

	_, err = svc.Join(ctx, alice, g.ID, 1, "", "")
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	_, err = svc.Join(ctx, bob, g.ID, 0, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err = svc.Join(ctx, bob, g.ID, 2, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	// cancellation under target reopens the campaign
	got, err = svc.CancelJoin(ctx, bob, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRecruiting, got.Status)
	assert.Equal(t, 2, got.CurrentParticipants)

	_, err = svc.CancelJoin(ctx, bob, g.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.Join(ctx, bob, uuid.New(), 1, "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateCreatorOnly(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "30,000원")
	creator := actor("creator")

	g, err := svc.Create(ctx, creator, CreateInput{
		PerformanceID: perf.ID,
		Title:         "공구",
		Target:        10,
		DiscountRate:  15,
		Deadline:      time.Now().Add(time.Hour),
	}, "")
	require.NoError(t, err)

	title := "새 제목"
	_, err = svc.Update(ctx, actor("stranger"), g.ID, domain.Patch{Title: &title})
	assert.ErrorIs(t, err, ErrNotCreator)

	got, err := svc.Update(ctx, creator, g.ID, domain.Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "새 제목", got.Title)

	// discount edits recompute the price
	rate := 30
	got, err = svc.Update(ctx, creator, g.ID, domain.Patch{DiscountRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, int64(21000), got.DiscountedPrice)

	bad := domain.Status("paused")
	_, err = svc.Update(ctx, creator, g.ID, domain.Patch{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	past := time.Now().Add(-time.Hour)
	_, err = svc.Update(ctx, creator, g.ID, domain.Patch{Deadline: &past})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateTargetGuard(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "30,000원")
	creator := actor("creator")

	g, err := svc.Create(ctx, creator, CreateInput{
		PerformanceID: perf.ID,
		Title:         "공구",
		Target:        10,
		DiscountRate:  15,
		Deadline:      time.Now().Add(time.Hour),
	}, "")
	require.NoError(t, err)

	_, err = svc.Join(ctx, actor("alice"), g.ID, 6, "", "")
	require.NoError(t, err)

	below := 5
	_, err = svc.Update(ctx, creator, g.ID, domain.Patch{TargetParticipants: &below})
	assert.ErrorIs(t, err, ErrTargetBelowCurrent)
}

func TestDeleteGuards(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "30,000원")
	creator := actor("creator")

	g, err := svc.Create(ctx, creator, CreateInput{
		PerformanceID: perf.ID,
		Title:         "공구",
		Target:        10,
		DiscountRate:  15,
		Deadline:      time.Now().Add(time.Hour),
	}, "")
	require.NoError(t, err)

	err = svc.Delete(ctx, actor("stranger"), g.ID)
	assert.ErrorIs(t, err, ErrNotCreator)

	alice := actor("alice")
	_, err = svc.Join(ctx, alice, g.ID, 1, "", "")
	require.NoError(t, err)

	err = svc.Delete(ctx, creator, g.ID)
	assert.ErrorIs(t, err, ErrHasParticipants)

	_, err = svc.CancelJoin(ctx, alice, g.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, creator, g.ID))

	_, err = svc.Get(ctx, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListJoinedAndCreated(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "30,000원")
	creator := actor("creator")
	alice := actor("alice")

	mk := func(title string) uuid.UUID {
		g, err := svc.Create(ctx, creator, CreateInput{
			PerformanceID: perf.ID,
			Title:         title,
			Target:        10,
			DiscountRate:  15,
			Deadline:      time.Now().Add(time.Hour),
		}, "")
		require.NoError(t, err)
		return g.ID
	}

	first := mk("첫번째")
	second := mk("두번째")

	_, err := svc.Join(ctx, alice, first, 1, "", "")
	require.NoError(t, err)

	created, err := svc.ListCreated(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	joined, err := svc.ListJoined(ctx, alice)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, first, joined[0].ID)

	joined, err = svc.ListJoined(ctx, creator)
	require.NoError(t, err)
	assert.Empty(t, joined)

	_ = second
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	perf := seedPerformance(store, "30,000원")
	creator := actor("creator")

	g, err := svc.Create(ctx, creator, CreateInput{
		PerformanceID: perf.ID,
		Title:         "공구",
		Target:        2,
		DiscountRate:  15,
		Deadline:      time.Now().Add(time.Hour),
	}, "")
	require.NoError(t, err)

	_, err = svc.Join(ctx, actor("alice"), g.ID, 2, "", "")
	require.NoError(t, err)

	sc, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sc.Recruiting)
	assert.Equal(t, int64(1), sc.Completed)
	assert.Equal(t, int64(1), sc.Total)
}

func TestMutationsPublishChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore(memory.Config{})
	broker := notify.NewBroker()
	svc := New(store, nil, broker, nil, Config{})

	perf := seedPerformance(store, "30,000원")

	got := make(chan uuid.UUID, 8)
	go func() {
		_ = broker.Subscribe(ctx, func(_ context.Context, id uuid.UUID) {
			got <- id
		})
	}()

	// give the subscriber a moment to register
	time.Sleep(10 * time.Millisecond)

	g, err := svc.Create(ctx, actor("creator"), CreateInput{
		PerformanceID: perf.ID,
		Title:         "공구",
		Target:        10,
		DiscountRate:  15,
		Deadline:      time.Now().Add(time.Hour),
	}, "")
	require.NoError(t, err)

	select {
	case id := <-got:
		assert.Equal(t, g.ID, id)
	case <-time.After(time.Second):
		t.Fatal("no change notification received")
	}
}
