package cache

import (
	"context"
	"time"
)

// BytesCache — best-effort кэш текущего состояния заказа. Кэш не обязан
// быть доступен: промах или ошибка означают поход в БД.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
