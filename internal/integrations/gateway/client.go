package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// ErrBadSignature: MAC callback'а не совпал. Для state machine это
// эквивалент отсутствия события; HTTP-хендлер отвечает протокольным
// негативным ack'ом, не 500.
var ErrBadSignature = errors.New("gateway: mac mismatch")

type Intent struct {
	// TransRef — app_trans_id, сохраняется как externalPaymentRef.
	TransRef    string
	RedirectURL string
}

type IntentRequest struct {
	OrderID string
	UserID  string
	Amount  int64
	// EmbedData/Item — JSON-строки, попадают в подписываемую строку как есть.
	EmbedData string
	Item      string
}

// Callback — входящий webhook: {data, mac, type}. data — JSON-строка,
// mac — HMAC-SHA256(key2, data).
type Callback struct {
	Data string `json:"data"`
	MAC  string `json:"mac"`
	Type int    `json:"type"`
}

// CallbackData — расшифрованный data-сегмент callback'а.
type CallbackData struct {
	AppTransID string `json:"app_trans_id"`
	AppUser    string `json:"app_user"`
	Amount     int64  `json:"amount"`
	AppTime    int64  `json:"app_time"`
}

type Status struct {
	Paid bool
}

type Client interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	QueryStatus(ctx context.Context, transRef string) (Status, error)
}

// Sign — HMAC-SHA256 hex по строке из полей, склеенных через "|".
func Sign(key string, fields ...string) string {
	msg := ""
	for i, f := range fields {
		if i > 0 {
			msg += "|"
		}
		msg += f
	}
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallback сверяет mac по key2. Сравнение — constant time.
func VerifyCallback(key2 string, cb Callback) error {
	want := Sign(key2, cb.Data)
	if !hmac.Equal([]byte(want), []byte(cb.MAC)) {
		return ErrBadSignature
	}
	return nil
}
