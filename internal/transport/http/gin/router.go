package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/museyou/gongu-go/internal/domain"
	redisrepo "github.com/museyou/gongu-go/internal/repository/redis"
	"github.com/museyou/gongu-go/internal/service"
	"github.com/museyou/gongu-go/internal/service/catalog"
	"github.com/museyou/gongu-go/internal/service/grouppurchase"
)

type Config struct {
	JWTSecret   string
	AdminUserID string
}

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	cfg Config,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/performances", handleListPerformances(svcs))
	r.GET("/performances/:id", handleGetPerformance(svcs))

	r.GET("/group-purchases", handleListGroupPurchases(svcs))
	r.GET("/group-purchases/stats", handleGetStats(svcs))
	r.GET("/group-purchases/:id", handleGetGroupPurchase(svcs))

	// Authenticated API
	auth := r.Group("/", AuthRequired(cfg.JWTSecret))
	{
		auth.POST("/group-purchases", handleCreateGroupPurchase(svcs, idem))
		auth.POST("/group-purchases/:id/join", handleJoin(svcs, idem))
		auth.DELETE("/group-purchases/:id/join", handleCancelJoin(svcs))
		auth.PATCH("/group-purchases/:id", handleUpdateGroupPurchase(svcs))
		auth.DELETE("/group-purchases/:id", handleDeleteGroupPurchase(svcs))

		auth.GET("/me/group-purchases", handleListJoined(svcs))
		auth.GET("/me/group-purchases/created", handleListCreated(svcs))
	}

	// Admin API
	admin := r.Group("/admin", AuthRequired(cfg.JWTSecret), AdminOnly(cfg.AdminUserID))
	{
		admin.POST("/performances", handleCreatePerformance(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List performances
// @Param    category  query  string  false  "category"
// @Param    district  query  string  false  "district"
// @Param    search    query  string  false  "title/venue substring"
// @Success  200  {array}  domain.Performance
// @Router   /performances [get]
func handleListPerformances(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := domain.PerformanceFilter{
			Category: c.Query("category"),
			District: c.Query("district"),
			Search:   c.Query("search"),
		}

		perfs, err := svcs.Catalog.List(c.Request.Context(), filter)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, perfs, "public, max-age=60", true)
	}
}

// @Summary  Get performance
// @Param    id  path  string  true  "Performance ID (uuid)"
// @Success  200  {object}  domain.Performance
// @Failure  404  {object}  ErrorResponse
// @Router   /performances/{id} [get]
func handleGetPerformance(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		p, err := svcs.Catalog.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, p, "public, max-age=60", true)
	}
}

// @Summary  List group purchases
// @Param    category      query  string  false  "performance category"
// @Param    district      query  string  false  "venue district"
// @Param    status        query  string  false  "lifecycle status"
// @Param    min_discount  query  int     false  "minimum discount rate"
// @Param    search        query  string  false  "title/venue substring"
// @Param    sort          query  string  false  "popular|deadline|newest|discount"
// @Param    limit         query  int     false  "page size"
// @Param    offset        query  int     false  "offset"
// @Success  200  {object}  ListGroupPurchasesResponse
// @Router   /group-purchases [get]
func handleListGroupPurchases(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := domain.Filter{
			Category:        c.Query("category"),
			District:        c.Query("district"),
			Status:          domain.Status(c.Query("status")),
			MinDiscountRate: parseIntDefault(c.Query("min_discount"), 0),
			Search:          c.Query("search"),
		}
		if filter.Status != "" && !filter.Status.Valid() {
			badRequest(c, "invalid status")
			return
		}

		sort := domain.SortKey(c.DefaultQuery("sort", string(domain.SortNewest)))
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		items, err := svcs.GroupPurchase.List(c.Request.Context(), filter, sort)
		if err != nil {
			respondErr(c, err)
			return
		}

		total := len(items)
		items = slicePage(items, limit, offset)

		writeJSONWithCache(c, http.StatusOK, ListGroupPurchasesResponse{
			Items:  items,
			Total:  total,
			Limit:  limit,
			Offset: offset,
		}, "public, max-age=15", true)
	}
}

// @Summary  Get group purchase with participants
// @Param    id  path  string  true  "Group purchase ID (uuid)"
// @Success  200  {object}  domain.GroupPurchase
// @Failure  404  {object}  ErrorResponse
// @Router   /group-purchases/{id} [get]
func handleGetGroupPurchase(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		g, err := svcs.GroupPurchase.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, g, "public, max-age=15", true)
	}
}

// @Summary  Aggregate campaign counters per status
// @Success  200  {object}  domain.StatusCounts
// @Router   /group-purchases/stats [get]
func handleGetStats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, err := svcs.GroupPurchase.Stats(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, sc, "public, max-age=15", true)
	}
}

// @Summary  Create group purchase (idempotent)
// @Param    req body  CreateGroupPurchaseRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} domain.GroupPurchase
// @Failure  400 {object} ErrorResponse
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /group-purchases [post]
func handleCreateGroupPurchase(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}

		var req CreateGroupPurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		perfID, err := uuid.Parse(req.PerformanceID)
		if err != nil {
			badRequest(c, "invalid performance_id")
			return
		}

		deadline, err := parseRFC3339(req.Deadline)
		if err != nil {
			badRequest(c, "invalid deadline (RFC3339)")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemCreate(actor.ID, idemKey)
			if done := replayIdem(c, idem, idemStorageKey, idemKey); done {
				return
			}
		}

		g, err := svcs.GroupPurchase.Create(c.Request.Context(), actor, grouppurchase.CreateInput{
			PerformanceID: perfID,
			Title:         req.Title,
			Description:   req.Description,
			Target:        req.Target,
			DiscountRate:  req.DiscountRate,
			Deadline:      deadline,
		}, "ip:"+c.ClientIP())
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(g)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, g)
	}
}

// @Summary  Join group purchase (idempotent)
// @Param    id  path  string  true  "Group purchase ID (uuid)"
// @Param    req body  JoinRequest true "payload"
// @Success  200 {object} domain.GroupPurchase
// @Failure  409 {object} ErrorResponse "not recruiting / already joined"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /group-purchases/{id}/join [post]
func handleJoin(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}

		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req JoinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemJoin(id, idemKey)
			if done := replayIdem(c, idem, idemStorageKey, idemKey); done {
				return
			}
		}

		g, err := svcs.GroupPurchase.Join(
			c.Request.Context(),
			actor,
			id,
			req.ParticipantCount,
			req.Message,
			"ip:"+c.ClientIP(),
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(g)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusOK, g)
	}
}

// @Summary  Cancel my participation
// @Param    id  path  string  true  "Group purchase ID (uuid)"
// @Success  200 {object} domain.GroupPurchase
// @Failure  409 {object} ErrorResponse "no active participation"
// @Router   /group-purchases/{id}/join [delete]
func handleCancelJoin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}

		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		g, err := svcs.GroupPurchase.CancelJoin(c.Request.Context(), actor, id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, g)
	}
}

// @Summary  Edit group purchase (creator only)
// @Param    id  path  string  true  "Group purchase ID (uuid)"
// @Param    req body  UpdateGroupPurchaseRequest true "partial payload"
// @Success  200 {object} domain.GroupPurchase
// @Failure  403 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "target below current"
// @Router   /group-purchases/{id} [patch]
func handleUpdateGroupPurchase(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}

		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req UpdateGroupPurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		patch := domain.Patch{
			Title:              req.Title,
			Description:        req.Description,
			TargetParticipants: req.Target,
			DiscountRate:       req.DiscountRate,
		}

		if req.Deadline != nil {
			t, err := parseRFC3339(*req.Deadline)
			if err != nil {
				badRequest(c, "invalid deadline (RFC3339)")
				return
			}
			patch.Deadline = &t
		}

		if req.Status != nil {
			st := domain.Status(*req.Status)
			patch.Status = &st
		}

		g, err := svcs.GroupPurchase.Update(c.Request.Context(), actor, id, patch)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, g)
	}
}

// @Summary  Delete group purchase (creator only, no participants)
// @Param    id  path  string  true  "Group purchase ID (uuid)"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "has participants"
// @Router   /group-purchases/{id} [delete]
func handleDeleteGroupPurchase(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}

		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		if err := svcs.GroupPurchase.Delete(c.Request.Context(), actor, id); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  List group purchases I joined
// @Success  200 {array} domain.GroupPurchase
// @Router   /me/group-purchases [get]
func handleListJoined(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}

		out, err := svcs.GroupPurchase.ListJoined(c.Request.Context(), actor)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// @Summary  List group purchases I created
// @Success  200 {array} domain.GroupPurchase
// @Router   /me/group-purchases/created [get]
func handleListCreated(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}

		out, err := svcs.GroupPurchase.ListCreated(c.Request.Context(), actor)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Create performance (admin)
// @Param    req body  CreatePerformanceRequest true "payload"
// @Success  201 {object} domain.Performance
// @Router   /admin/performances [post]
func handleCreatePerformance(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePerformanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		ends, err := parseRFC3339(req.EndsAt)
		if err != nil {
			badRequest(c, "invalid ends_at (RFC3339)")
			return
		}

		p, err := svcs.Catalog.Create(c.Request.Context(), domain.Performance{
			Title:    req.Title,
			Category: req.Category,
			Venue:    req.Venue,
			District: req.District,
			Price:    req.Price,
			ImageURL: req.ImageURL,
			StartsAt: starts,
			EndsAt:   ends,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, p)
	}
}

// --- Helpers ---

// replayIdem serves a previously saved result or reports a concurrent
// in-flight request. Returns true when the response was written.
func replayIdem(
	c *gin.Context,
	idem *redisrepo.IdempotencyStore,
	storageKey, idemKey string,
) bool {
	if payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey); ok {
		c.Header("Idempotency-Key", idemKey)
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
		return true
	}

	locked, err := idem.AcquireLock(c.Request.Context(), storageKey, 60*time.Second)
	if err != nil {
		respondErr(c, err)
		return true
	}
	if !locked {
		if payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey); ok {
			c.Header("Idempotency-Key", idemKey)
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
			return true
		}
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
		return true
	}

	return false
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func slicePage(items []domain.GroupPurchase, limit, offset int) []domain.GroupPurchase {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []domain.GroupPurchase{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// group purchase service
	case errors.Is(err, grouppurchase.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "group purchase not found"})
		return
	case errors.Is(err, grouppurchase.ErrPerformanceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "performance not found"})
		return
	case errors.Is(err, grouppurchase.ErrNotCreator):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the creator may do this"})
		return
	case errors.Is(err, grouppurchase.ErrNotRecruiting):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "group purchase is not recruiting"})
		return
	case errors.Is(err, grouppurchase.ErrDeadlinePassed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "deadline has passed"})
		return
	case errors.Is(err, grouppurchase.ErrAlreadyJoined):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already joined"})
		return
	case errors.Is(err, grouppurchase.ErrNotParticipant):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no active participation"})
		return
	case errors.Is(err, grouppurchase.ErrHasParticipants):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "group purchase has participants"})
		return
	case errors.Is(err, grouppurchase.ErrTargetBelowCurrent):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "target cannot go below current participants"})
		return
	case errors.Is(err, grouppurchase.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, grouppurchase.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return

	// catalog service
	case errors.Is(err, catalog.ErrPerformanceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "performance not found"})
		return
	case errors.Is(err, catalog.ErrPerformanceConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "performance already exists"})
		return
	case errors.Is(err, catalog.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
