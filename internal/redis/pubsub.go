package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/museyou/gongu-go/internal/notify"
)

// GroupPurchasesPubSub is the Redis-backed notify.Publisher. One channel
// carries all campaign changes; consumers refetch the affected record.
type GroupPurchasesPubSub struct {
	rdb     *redis.Client
	channel string
}

var _ notify.Publisher = (*GroupPurchasesPubSub)(nil)

func NewGroupPurchasesPubSub(rdb *redis.Client) *GroupPurchasesPubSub {
	return &GroupPurchasesPubSub{
		rdb:     rdb,
		channel: ChannelGroupPurchasesChanged(),
	}
}

type changedMsg struct {
	Type   string    `json:"type"`
	ID     uuid.UUID `json:"id"`
	TsUnix int64     `json:"ts_unix"`
}

func (p *GroupPurchasesPubSub) PublishGroupPurchaseChanged(ctx context.Context, id uuid.UUID) error {
	msg := changedMsg{
		Type:   "group_purchase_changed",
		ID:     id,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *GroupPurchasesPubSub) Subscribe(ctx context.Context, handler notify.Handler) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev changedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.ID != uuid.Nil {
				handler(ctx, ev.ID)
			}
		}
	}
}
