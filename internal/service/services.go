package service

import (
	"github.com/museyou/gongu-go/internal/notify"
	"github.com/museyou/gongu-go/internal/repository"
	redisrepo "github.com/museyou/gongu-go/internal/repository/redis"
	"github.com/museyou/gongu-go/internal/service/catalog"
	"github.com/museyou/gongu-go/internal/service/grouppurchase"
)

type Services struct {
	GroupPurchase *grouppurchase.Service
	Catalog       *catalog.Service
}

type Config struct {
	GroupPurchase grouppurchase.Config
	Catalog       catalog.Config
}

func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	publisher notify.Publisher,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Services {
	return &Services{
		GroupPurchase: grouppurchase.New(store, cache, publisher, limiter, cfg.GroupPurchase),
		Catalog:       catalog.New(store, cache, cfg.Catalog),
	}
}
