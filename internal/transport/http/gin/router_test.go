package httpgin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museyou/gongu-go/internal/domain"
	"github.com/museyou/gongu-go/internal/repository/memory"
	"github.com/museyou/gongu-go/internal/service"
	"github.com/museyou/gongu-go/internal/service/catalog"
	"github.com/museyou/gongu-go/internal/service/grouppurchase"
)

const testSecret = "test-secret"

var testAdminID = uuid.New()

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore(memory.Config{})
	svcs := service.NewServices(store, nil, nil, nil, service.Config{
		GroupPurchase: grouppurchase.Config{},
		Catalog:       catalog.Config{},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(svcs, nil, logger, Config{
		JWTSecret:   testSecret,
		AdminUserID: testAdminID.String(),
	})

	return router, store
}

func signToken(t *testing.T, user domain.UserRef) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func doJSON(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedShow(store *memory.Store) domain.Performance {
	p := domain.Performance{
		ID:       uuid.New(),
		Title:    "라이온 킹",
		Category: "뮤지컬",
		Venue:    "예술의전당",
		District: "서초구",
		Price:    "80,000원",
		StartsAt: time.Now().Add(30 * 24 * time.Hour),
		EndsAt:   time.Now().Add(60 * 24 * time.Hour),
	}
	store.Seed([]domain.Performance{p}, nil)
	return p
}

func createCampaign(t *testing.T, router *gin.Engine, perf domain.Performance, token string) domain.GroupPurchase {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/group-purchases", token, gin.H{
		"performance_id":      perf.ID.String(),
		"title":               "라이온 킹 공구",
		"target_participants": 5,
		"discount_rate":       20,
		"deadline":            time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var g domain.GroupPurchase
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	return g
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/group-purchases", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me/group-purchases", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// wrong signing key is rejected
	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := bad.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	w = doJSON(router, http.MethodGet, "/me/group-purchases", s, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndGetGroupPurchase(t *testing.T) {
	router, store := newTestRouter(t)
	perf := seedShow(store)

	creator := domain.UserRef{ID: uuid.New(), Name: "민지", Email: "minji@example.com"}
	token := signToken(t, creator)

	g := createCampaign(t, router, perf, token)
	assert.Equal(t, domain.StatusRecruiting, g.Status)
	assert.Equal(t, int64(64000), g.DiscountedPrice)
	assert.Equal(t, "민지", g.Creator.Name)

	w := doJSON(router, http.MethodGet, "/group-purchases/"+g.ID.String(), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/group-purchases/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/group-purchases/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateValidationErrors(t *testing.T) {
	router, store := newTestRouter(t)
	perf := seedShow(store)
	token := signToken(t, domain.UserRef{ID: uuid.New(), Name: "민지"})

	// binding failure: discount above the allowed range
	w := doJSON(router, http.MethodPost, "/group-purchases", token, gin.H{
		"performance_id":      perf.ID.String(),
		"title":               "공구",
		"target_participants": 5,
		"discount_rate":       80,
		"deadline":            time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// unknown performance
	w = doJSON(router, http.MethodPost, "/group-purchases", token, gin.H{
		"performance_id":      uuid.NewString(),
		"title":               "공구",
		"target_participants": 5,
		"discount_rate":       20,
		"deadline":            time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// past deadline passes binding but fails the service guard
	w = doJSON(router, http.MethodPost, "/group-purchases", token, gin.H{
		"performance_id":      perf.ID.String(),
		"title":               "공구",
		"target_participants": 5,
		"discount_rate":       20,
		"deadline":            time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinFlow(t *testing.T) {
	router, store := newTestRouter(t)
	perf := seedShow(store)

	creator := domain.UserRef{ID: uuid.New(), Name: "민지"}
	g := createCampaign(t, router, perf, signToken(t, creator))

	alice := domain.UserRef{ID: uuid.New(), Name: "수진"}
	aliceToken := signToken(t, alice)

	path := fmt.Sprintf("/group-purchases/%s/join", g.ID)

	w := doJSON(router, http.MethodPost, path, aliceToken, gin.H{"participant_count": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got domain.GroupPurchase
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.CurrentParticipants)
	assert.Equal(t, 40, got.Progress)

	// double join conflicts
	w = doJSON(router, http.MethodPost, path, aliceToken, gin.H{"participant_count": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	// filling the target completes the campaign
	bobToken := signToken(t, domain.UserRef{ID: uuid.New(), Name: "현우"})
	w = doJSON(router, http.MethodPost, path, bobToken, gin.H{"participant_count": 3})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusCompleted, got.Status)

	// completed campaigns reject further joins
	w = doJSON(router, http.MethodPost, path, signToken(t, domain.UserRef{ID: uuid.New()}), gin.H{"participant_count": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	// cancel reopens recruiting
	w = doJSON(router, http.MethodDelete, path, bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusRecruiting, got.Status)

	// cancelling again is a conflict
	w = doJSON(router, http.MethodDelete, path, bobToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// joined list reflects the active record
	w = doJSON(router, http.MethodGet, "/me/group-purchases", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var joined []domain.GroupPurchase
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &joined))
	require.Len(t, joined, 1)
	assert.Equal(t, g.ID, joined[0].ID)
}

func TestUpdateAndDeleteAuthorization(t *testing.T) {
	router, store := newTestRouter(t)
	perf := seedShow(store)

	creator := domain.UserRef{ID: uuid.New(), Name: "민지"}
	creatorToken := signToken(t, creator)
	g := createCampaign(t, router, perf, creatorToken)

	strangerToken := signToken(t, domain.UserRef{ID: uuid.New(), Name: "누군가"})
	path := "/group-purchases/" + g.ID.String()

	w := doJSON(router, http.MethodPatch, path, strangerToken, gin.H{"title": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodDelete, path, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodPatch, path, creatorToken, gin.H{"title": "새 제목", "status": "closed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got domain.GroupPurchase
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "새 제목", got.Title)
	assert.Equal(t, domain.StatusClosed, got.Status)

	w = doJSON(router, http.MethodDelete, path, creatorToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestListFilteringAndPagination(t *testing.T) {
	router, store := newTestRouter(t)
	perf := seedShow(store)
	token := signToken(t, domain.UserRef{ID: uuid.New(), Name: "민지"})

	for i := 0; i < 3; i++ {
		createCampaign(t, router, perf, token)
	}

	w := doJSON(router, http.MethodGet, "/group-purchases?limit=2&offset=0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListGroupPurchasesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Items, 2)

	w = doJSON(router, http.MethodGet, "/group-purchases?limit=2&offset=2", "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 1)

	w = doJSON(router, http.MethodGet, "/group-purchases?category=연극", "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Total)

	w = doJSON(router, http.MethodGet, "/group-purchases?status=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	perf := seedShow(store)
	token := signToken(t, domain.UserRef{ID: uuid.New(), Name: "민지"})

	createCampaign(t, router, perf, token)

	w := doJSON(router, http.MethodGet, "/group-purchases/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var sc domain.StatusCounts
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sc))
	assert.Equal(t, int64(1), sc.Recruiting)
	assert.Equal(t, int64(1), sc.Total)
}

func TestAdminPerformanceCreate(t *testing.T) {
	router, _ := newTestRouter(t)

	body := gin.H{
		"title":     "빌리 엘리어트",
		"category":  "뮤지컬",
		"venue":     "디큐브 링크아트센터",
		"district":  "구로구",
		"price":     "70,000원",
		"starts_at": time.Now().Add(30 * 24 * time.Hour).Format(time.RFC3339),
		"ends_at":   time.Now().Add(90 * 24 * time.Hour).Format(time.RFC3339),
	}

	// plain users are rejected
	userToken := signToken(t, domain.UserRef{ID: uuid.New(), Name: "민지"})
	w := doJSON(router, http.MethodPost, "/admin/performances", userToken, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken := signToken(t, domain.UserRef{ID: testAdminID, Name: "관리자"})
	w = doJSON(router, http.MethodPost, "/admin/performances", adminToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p domain.Performance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.NotEqual(t, uuid.Nil, p.ID)

	// public catalog sees it
	w = doJSON(router, http.MethodGet, "/performances?category=뮤지컬", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestETagRevalidation(t *testing.T) {
	router, store := newTestRouter(t)
	perf := seedShow(store)

	w := doJSON(router, http.MethodGet, "/performances/"+perf.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/performances/"+perf.ID.String(), nil)
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusNotModified, w2.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
