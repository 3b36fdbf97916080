package zalopayhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	appID   string
	key1    string
	httpc   *http.Client
}

// New: key1 подписывает исходящие create/query запросы. key2 (проверка
// callback'ов) сюда не передаётся — верификация живёт в gateway.VerifyCallback
// и клиенту не нужна.
func New(baseURL, appID, key1 string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9200"
	}
	return &Client{
		baseURL: baseURL,
		appID:   appID,
		key1:    key1,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type createResp struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	OrderURL      string `json:"order_url"`
}

// CreateIntent строит подписанную форму создания платежа.
// mac = HMAC-SHA256(key1, app_id|app_trans_id|app_user|amount|app_time|embed_data|item).
func (c *Client) CreateIntent(ctx context.Context, req gateway.IntentRequest) (gateway.Intent, error) {
	appTime := time.Now().UnixMilli()
	// app_trans_id по протоколу шлюза начинается с yymmdd.
	transRef := fmt.Sprintf("%s_%s", time.Now().UTC().Format("060102"), uuid.NewString())

	embed := req.EmbedData
	if embed == "" {
		embed = "{}"
	}
	item := req.Item
	if item == "" {
		item = "[]"
	}
	amount := strconv.FormatInt(req.Amount, 10)

	mac := gateway.Sign(c.key1, c.appID, transRef, req.UserID, amount, strconv.FormatInt(appTime, 10), embed, item)

	form := url.Values{}
	form.Set("app_id", c.appID)
	form.Set("app_trans_id", transRef)
	form.Set("app_user", req.UserID)
	form.Set("amount", amount)
	form.Set("app_time", strconv.FormatInt(appTime, 10))
	form.Set("embed_data", embed)
	form.Set("item", item)
	form.Set("mac", mac)

	var resp createResp
	if err := c.postForm(ctx, "/v2/create", form, &resp); err != nil {
		return gateway.Intent{}, errors.Wrap(err, "create intent")
	}
	if resp.ReturnCode != 1 {
		return gateway.Intent{}, fmt.Errorf("gateway create return_code=%d: %s", resp.ReturnCode, resp.ReturnMessage)
	}

	return gateway.Intent{TransRef: transRef, RedirectURL: resp.OrderURL}, nil
}

type queryResp struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
}

// QueryStatus — polling-запрос по transRef. return_code==1 — оплачен,
// return_code==2/3 — ещё нет; остальное — ошибка транспорта/протокола.
func (c *Client) QueryStatus(ctx context.Context, transRef string) (gateway.Status, error) {
	mac := gateway.Sign(c.key1, c.appID, transRef, c.key1)

	form := url.Values{}
	form.Set("app_id", c.appID)
	form.Set("app_trans_id", transRef)
	form.Set("mac", mac)

	var resp queryResp
	if err := c.postForm(ctx, "/v2/query", form, &resp); err != nil {
		return gateway.Status{}, errors.Wrap(err, "query status")
	}

	switch resp.ReturnCode {
	case 1:
		return gateway.Status{Paid: true}, nil
	case 2, 3:
		return gateway.Status{Paid: false}, nil
	default:
		return gateway.Status{}, fmt.Errorf("gateway query return_code=%d: %s", resp.ReturnCode, resp.ReturnMessage)
	}
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("gateway http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
