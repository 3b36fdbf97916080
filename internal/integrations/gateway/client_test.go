package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSign_joinsWithPipe(t *testing.T) {
	// подпись детерминирована и зависит от порядка полей
	a := Sign("key", "2554", "260828_x", "100000")
	b := Sign("key", "2554", "260828_x", "100000")
	require.Equal(t, a, b)
	require.Len(t, a, 64) // hex(SHA256)

	require.NotEqual(t, a, Sign("key", "260828_x", "2554", "100000"))
	require.NotEqual(t, a, Sign("other", "2554", "260828_x", "100000"))
}

func TestVerifyCallback(t *testing.T) {
	data := `{"app_trans_id":"260828_x","amount":100000}`
	cb := Callback{Data: data, MAC: Sign("key2", data), Type: 1}
	require.NoError(t, VerifyCallback("key2", cb))

	// подделка data
	tampered := cb
	tampered.Data = `{"app_trans_id":"260828_x","amount":1}`
	require.ErrorIs(t, VerifyCallback("key2", tampered), ErrBadSignature)

	// подделка mac
	tampered = cb
	tampered.MAC = "deadbeef"
	require.ErrorIs(t, VerifyCallback("key2", tampered), ErrBadSignature)

	// чужой ключ
	require.ErrorIs(t, VerifyCallback("key1", cb), ErrBadSignature)
}
