package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	"github.com/google/uuid"
)

// FakeClient — заглушка шлюза: интент создаётся сразу, "оплата" наступает
// спустя настраиваемую задержку (для демо polling-пути).
type FakeClient struct {
	mu       sync.Mutex
	intents  map[string]time.Time
	payAfter time.Duration
}

func New(payAfter time.Duration) *FakeClient {
	return &FakeClient{
		intents:  make(map[string]time.Time),
		payAfter: payAfter,
	}
}

func (f *FakeClient) CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	ref := fmt.Sprintf("%s_%s", time.Now().UTC().Format("060102"), uuid.NewString())
	f.mu.Lock()
	f.intents[ref] = time.Now().UTC()
	f.mu.Unlock()
	return gateway.Intent{
		TransRef:    ref,
		RedirectURL: "https://pay.fake.local/checkout/" + ref,
	}, nil
}

func (f *FakeClient) QueryStatus(ctx context.Context, transRef string) (gateway.Status, error) {
	f.mu.Lock()
	created, ok := f.intents[transRef]
	f.mu.Unlock()
	if !ok {
		return gateway.Status{Paid: false}, nil
	}
	return gateway.Status{Paid: time.Since(created) >= f.payAfter}, nil
}
