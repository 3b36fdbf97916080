package zalopayhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	"github.com/stretchr/testify/require"
)

func TestCreateIntent_signsAndParses(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/create", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"return_code":1,"return_message":"success","order_url":"https://pay.example/x"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "2554", "key1")
	intent, err := c.CreateIntent(context.Background(), gateway.IntentRequest{
		OrderID: "ord-1",
		UserID:  "u1",
		Amount:  121000,
	})
	require.NoError(t, err)
	require.Equal(t, "https://pay.example/x", intent.RedirectURL)
	require.Equal(t, gotForm["app_trans_id"], intent.TransRef)

	// app_trans_id начинается с yymmdd_
	require.Regexp(t, `^\d{6}_`, intent.TransRef)

	// сервер может пересчитать mac по тем же полям
	wantMAC := gateway.Sign("key1",
		gotForm["app_id"], gotForm["app_trans_id"], gotForm["app_user"],
		gotForm["amount"], gotForm["app_time"], gotForm["embed_data"], gotForm["item"])
	require.Equal(t, wantMAC, gotForm["mac"])
	require.Equal(t, "121000", gotForm["amount"])
	require.Equal(t, "{}", gotForm["embed_data"])
	require.Equal(t, "[]", gotForm["item"])
}

func TestCreateIntent_gatewayRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"return_code":-2,"return_message":"invalid mac"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "2554", "key1")
	_, err := c.CreateIntent(context.Background(), gateway.IntentRequest{Amount: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "return_code=-2")
}

func TestQueryStatus_codes(t *testing.T) {
	code := 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/query", r.URL.Path)
		require.NoError(t, r.ParseForm())
		// mac = Sign(key1, app_id|app_trans_id|key1)
		wantMAC := gateway.Sign("key1", "2554", r.PostForm.Get("app_trans_id"), "key1")
		require.Equal(t, wantMAC, r.PostForm.Get("mac"))
		_, _ = w.Write([]byte(`{"return_code":` + strconv.Itoa(code) + `,"return_message":""}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "2554", "key1")

	st, err := c.QueryStatus(context.Background(), "260828_x")
	require.NoError(t, err)
	require.True(t, st.Paid)

	// 2 и 3 — ещё не оплачен
	for _, notYet := range []int{2, 3} {
		code = notYet
		st, err = c.QueryStatus(context.Background(), "260828_x")
		require.NoError(t, err)
		require.False(t, st.Paid)
	}

	code = -49
	_, err = c.QueryStatus(context.Background(), "260828_x")
	require.Error(t, err)
}

func TestPostForm_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "2554", "key1")
	_, err := c.QueryStatus(context.Background(), "260828_x")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "gateway http 502"))
}
