package redisx

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "museyou:v1"

func KeyGroupPurchase(id uuid.UUID) string {
	return fmt.Sprintf("%s:gp:%s:detail", ns, id)
}

func KeyGroupPurchaseStats() string {
	return ns + ":gp:stats"
}

func KeyPerformance(id uuid.UUID) string {
	return fmt.Sprintf("%s:perf:%s", ns, id)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelGroupPurchasesChanged() string {
	return ns + ":gp:changed"
}
