package ghnhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/pkg/errors"
)

// Документированный remediable-класс: перевозчик отклонил optional-поле
// (купон/примечание) в create-запросе. Детект по явному code_message,
// не по тексту message.
const codeMsgUnsupportedField = "ORDER_CREATE_UNSUPPORTED_FIELD"

const (
	codeMsgNotFound         = "ORDER_NOT_FOUND"
	codeMsgAlreadyCancelled = "ORDER_ALREADY_CANCELLED"
)

var errAlreadyCancelled = errors.New("carrier: shipment already cancelled")

type Client struct {
	baseURL string
	token   string
	shopID  string
	httpc   *http.Client
}

func New(baseURL, token, shopID string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		shopID:  shopID,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type apiResp struct {
	Code        int             `json:"code"`
	CodeMessage string          `json:"code_message"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data"`
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", c.token)
	req.Header.Set("ShopId", c.shopID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return carrier.ErrRateLimited
	}
	if resp.StatusCode/100 != 2 && resp.StatusCode/100 != 4 {
		return fmt.Errorf("carrier http %d", resp.StatusCode)
	}

	var r apiResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return errors.Wrap(err, "decode")
	}
	if r.Code != 200 {
		switch r.CodeMessage {
		case codeMsgNotFound:
			return carrier.ErrNotFound
		case codeMsgAlreadyCancelled:
			return errAlreadyCancelled
		case codeMsgUnsupportedField:
			return &unsupportedFieldError{message: r.Message}
		}
		return fmt.Errorf("carrier code=%d code_message=%s: %s", r.Code, r.CodeMessage, r.Message)
	}

	if out != nil && len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, out); err != nil {
			return errors.Wrap(err, "decode data")
		}
	}
	return nil
}

type unsupportedFieldError struct {
	message string
}

func (e *unsupportedFieldError) Error() string {
	return "carrier rejected optional field: " + e.message
}

func isUnsupportedField(err error) bool {
	var ufe *unsupportedFieldError
	return errors.As(err, &ufe)
}

type feeReq struct {
	ToDistrictID int    `json:"to_district_id"`
	ToWardCode   string `json:"to_ward_code"`
	ServiceTier  string `json:"service_tier"`
	WeightG      int    `json:"weight"`
	LengthCm     int    `json:"length"`
	WidthCm      int    `json:"width"`
	HeightCm     int    `json:"height"`
}

type feeData struct {
	Total int64 `json:"total"`
}

func (c *Client) QuoteFee(ctx context.Context, dest models.ShippingInfo, parcel models.Parcel) (carrier.FeeQuote, error) {
	var data feeData
	err := c.post(ctx, "/v2/shipping-order/fee", feeReq{
		ToDistrictID: dest.DistrictID,
		ToWardCode:   dest.WardCode,
		ServiceTier:  parcel.ServiceTier,
		WeightG:      parcel.WeightG,
		LengthCm:     parcel.LengthCm,
		WidthCm:      parcel.WidthCm,
		HeightCm:     parcel.HeightCm,
	}, &data)
	if err != nil {
		return carrier.FeeQuote{}, errors.Wrap(err, "quote fee")
	}
	return carrier.FeeQuote{Total: data.Total}, nil
}

type createItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// createReq собирается через include-if-set по optional-полям: правила
// включения описаны на полях, а не рассыпаны условиями по коду.
type createReq struct {
	ClientOrderCode string       `json:"client_order_code"`
	ToName          string       `json:"to_name"`
	ToPhone         string       `json:"to_phone"`
	ToAddress       string       `json:"to_address"`
	ToWardCode      string       `json:"to_ward_code"`
	ToDistrictID    int          `json:"to_district_id"`
	ServiceTier     string       `json:"service_tier"`
	CODAmount       int64        `json:"cod_amount"`
	WeightG         int          `json:"weight"`
	LengthCm        int          `json:"length"`
	WidthCm         int          `json:"width"`
	HeightCm        int          `json:"height"`
	Items           []createItem `json:"items"`

	// Optional: включаются только если непустые.
	Note       string `json:"note,omitempty"`
	CouponCode string `json:"coupon,omitempty"`
}

type createData struct {
	OrderCode string `json:"order_code"`
}

func buildCreateReq(req carrier.CreateShipmentRequest, includeOptional bool) createReq {
	items := make([]createItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, createItem{Name: it.Name, Quantity: it.Quantity})
	}
	out := createReq{
		ClientOrderCode: req.OrderID,
		ToName:          req.Destination.ReceiverName,
		ToPhone:         req.Destination.ReceiverPhone,
		ToAddress:       req.Destination.Street,
		ToWardCode:      req.Destination.WardCode,
		ToDistrictID:    req.Destination.DistrictID,
		ServiceTier:     req.Parcel.ServiceTier,
		CODAmount:       req.CODAmount,
		WeightG:         req.Parcel.WeightG,
		LengthCm:        req.Parcel.LengthCm,
		WidthCm:         req.Parcel.WidthCm,
		HeightCm:        req.Parcel.HeightCm,
		Items:           items,
	}
	if includeOptional {
		out.Note = req.Note
		out.CouponCode = req.CouponCode
	}
	return out
}

// CreateShipment делает не больше одного повтора, и только для
// документированного класса "unsupported optional field": повтор идёт
// с урезанным payload без optional-полей. Остальные ошибки — наверх.
func (c *Client) CreateShipment(ctx context.Context, req carrier.CreateShipmentRequest) (string, error) {
	var data createData
	err := c.post(ctx, "/v2/shipping-order/create", buildCreateReq(req, true), &data)
	if err != nil && isUnsupportedField(err) {
		data = createData{}
		err = c.post(ctx, "/v2/shipping-order/create", buildCreateReq(req, false), &data)
	}
	if err != nil {
		return "", errors.Wrap(err, "create shipment")
	}
	if data.OrderCode == "" {
		return "", errors.New("create shipment: empty order_code")
	}
	return data.OrderCode, nil
}

type refReq struct {
	OrderCode string `json:"order_code"`
}

// CancelShipment: "not found" / "already cancelled" — не ошибка, желаемое
// конечное состояние (нет активного shipment) уже достигнуто.
func (c *Client) CancelShipment(ctx context.Context, ref string) error {
	err := c.post(ctx, "/v2/shipping-order/cancel", refReq{OrderCode: ref}, nil)
	if err != nil {
		if errors.Is(err, carrier.ErrNotFound) || errors.Is(err, errAlreadyCancelled) {
			return nil
		}
		return errors.Wrap(err, "cancel shipment")
	}
	return nil
}

type detailData struct {
	OrderCode string `json:"order_code"`
	Status    string `json:"status"`
	Log       []struct {
		Status      string    `json:"status"`
		UpdatedDate time.Time `json:"updated_date"`
		Location    string    `json:"location"`
		Note        string    `json:"note"`
	} `json:"log"`
}

func (c *Client) GetDetail(ctx context.Context, ref string) (carrier.Detail, error) {
	var data detailData
	if err := c.post(ctx, "/v2/shipping-order/detail", refReq{OrderCode: ref}, &data); err != nil {
		return carrier.Detail{}, errors.Wrap(err, "get detail")
	}

	events := make([]carrier.StatusEvent, 0, len(data.Log))
	for _, e := range data.Log {
		events = append(events, carrier.StatusEvent{
			RawStatus: e.Status,
			Timestamp: e.UpdatedDate,
			Location:  e.Location,
			Note:      e.Note,
		})
	}

	cur := carrier.CurrentStatus(events)
	if cur == "" {
		cur = data.Status
	}

	return carrier.Detail{
		ShipmentRef:      data.OrderCode,
		CurrentRawStatus: cur,
		Events:           events,
	}, nil
}

type provincesData struct {
	Provinces []struct {
		ProvinceID int    `json:"province_id"`
		Name       string `json:"province_name"`
	} `json:"provinces"`
}

func (c *Client) Provinces(ctx context.Context) ([]carrier.Province, error) {
	var data provincesData
	if err := c.post(ctx, "/master-data/province", struct{}{}, &data); err != nil {
		return nil, errors.Wrap(err, "list provinces")
	}
	out := make([]carrier.Province, 0, len(data.Provinces))
	for _, p := range data.Provinces {
		out = append(out, carrier.Province{ID: p.ProvinceID, Name: p.Name})
	}
	return out, nil
}

type districtsData struct {
	Districts []struct {
		DistrictID int    `json:"district_id"`
		ProvinceID int    `json:"province_id"`
		Name       string `json:"district_name"`
	} `json:"districts"`
}

func (c *Client) Districts(ctx context.Context, provinceID int) ([]carrier.District, error) {
	var data districtsData
	if err := c.post(ctx, "/master-data/district", map[string]int{"province_id": provinceID}, &data); err != nil {
		return nil, errors.Wrap(err, "list districts")
	}
	out := make([]carrier.District, 0, len(data.Districts))
	for _, d := range data.Districts {
		out = append(out, carrier.District{ID: d.DistrictID, ProvinceID: d.ProvinceID, Name: d.Name})
	}
	return out, nil
}

type wardsData struct {
	Wards []struct {
		WardCode   string `json:"ward_code"`
		DistrictID int    `json:"district_id"`
		Name       string `json:"ward_name"`
	} `json:"wards"`
}

func (c *Client) Wards(ctx context.Context, districtID int) ([]carrier.Ward, error) {
	var data wardsData
	if err := c.post(ctx, "/master-data/ward", map[string]int{"district_id": districtID}, &data); err != nil {
		return nil, errors.Wrap(err, "list wards")
	}
	out := make([]carrier.Ward, 0, len(data.Wards))
	for _, w := range data.Wards {
		out = append(out, carrier.Ward{Code: w.WardCode, DistrictID: w.DistrictID, Name: w.Name})
	}
	return out, nil
}
