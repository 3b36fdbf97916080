package orders_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BearBump/OrderBox/internal/integrations/carrier"
	"github.com/BearBump/OrderBox/internal/integrations/gateway"
	"github.com/BearBump/OrderBox/internal/models"
	"github.com/BearBump/OrderBox/internal/services/freight"
	"github.com/BearBump/OrderBox/internal/services/orders"
	"github.com/go-chi/chi/v5"
)

type OrdersAPI struct {
	svc       *orders.Service
	addresses carrier.AddressClient
	key2      string
}

func New(svc *orders.Service, addresses carrier.AddressClient, key2 string) *OrdersAPI {
	return &OrdersAPI{svc: svc, addresses: addresses, key2: key2}
}

func (a *OrdersAPI) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/orders", a.createOrder)
		r.Post("/orders/{orderID}/cancel", a.cancelOrder)
		r.Get("/orders/{orderID}/status", a.orderStatus)
		r.Post("/admin/orders/{orderID}/status", a.adminUpdateStatus)

		r.Post("/payments/gateway/callback", a.gatewayCallback)

		r.Post("/shipping/fee", a.shippingFee)
		r.Get("/shipping/provinces", a.provinces)
		r.Get("/shipping/districts", a.districts)
		r.Get("/shipping/wards", a.wards)
	})
}

type orderItemReq struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	WeightG   int    `json:"weightG,omitempty"`
}

type shippingReq struct {
	ReceiverName  string `json:"receiverName"`
	ReceiverPhone string `json:"receiverPhone"`
	Street        string `json:"street"`
	WardCode      string `json:"wardCode"`
	DistrictID    int    `json:"districtId"`
	ProvinceID    int    `json:"provinceId"`
}

type createOrderReq struct {
	UserID        string         `json:"userId"`
	Items         []orderItemReq `json:"items"`
	Shipping      shippingReq    `json:"shipping"`
	PaymentMethod string         `json:"paymentMethod"`
}

type createOrderResp struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	ShippingFee int64  `json:"shippingFee"`
	FeeDegraded bool   `json:"feeDegraded,omitempty"`
	Amount      int64  `json:"amount"`
	PaymentURL  string `json:"paymentUrl,omitempty"`
}

func (a *OrdersAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			WeightG:   it.WeightG,
		})
	}

	res, err := a.svc.CreateOrder(r.Context(), models.OrderCreateInput{
		UserID:        req.UserID,
		Items:         items,
		Shipping:      toShippingInfo(req.Shipping),
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResp{
		OrderID:     res.Order.ID,
		Status:      res.Order.Status,
		ShippingFee: res.Order.ShippingFee,
		FeeDegraded: res.Order.FeeDegraded,
		Amount:      res.Order.Amount(),
		PaymentURL:  res.PaymentURL,
	})
}

func (a *OrdersAPI) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	order, err := a.svc.CancelOrder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": order.ID, "status": order.Status})
}

func (a *OrdersAPI) orderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	v, err := a.svc.GetOrderStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type adminStatusReq struct {
	Status string `json:"status"`
}

func (a *OrdersAPI) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	var req adminStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	order, err := a.svc.AdminUpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": order.ID, "status": order.Status})
}

type callbackAck struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
}

// gatewayCallback — webhook шлюза. Протокол требует ack в теле с HTTP 200
// в обоих случаях: negative ack останавливает повторы шлюза по мусорному
// запросу, positive подтверждает приём. Неподписанное событие не трогает
// состояние заказа.
func (a *OrdersAPI) gatewayCallback(w http.ResponseWriter, r *http.Request) {
	var cb gateway.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeJSON(w, http.StatusOK, callbackAck{ReturnCode: -1, ReturnMessage: "invalid body"})
		return
	}

	if err := gateway.VerifyCallback(a.key2, cb); err != nil {
		slog.Warn("gateway callback rejected", "error", err.Error())
		writeJSON(w, http.StatusOK, callbackAck{ReturnCode: -1, ReturnMessage: "mac not equal"})
		return
	}

	var data gateway.CallbackData
	if err := json.Unmarshal([]byte(cb.Data), &data); err != nil {
		writeJSON(w, http.StatusOK, callbackAck{ReturnCode: -1, ReturnMessage: "invalid data"})
		return
	}

	if err := a.svc.ApplyPaymentConfirmed(r.Context(), data.AppTransID); err != nil {
		slog.Error("apply gateway callback", "app_trans_id", data.AppTransID, "error", err.Error())
		// Шлюз повторит попытку: состояние не потеряно, просто не применилось.
		writeJSON(w, http.StatusOK, callbackAck{ReturnCode: 0, ReturnMessage: "retry later"})
		return
	}

	writeJSON(w, http.StatusOK, callbackAck{ReturnCode: 1, ReturnMessage: "success"})
}

type feeReq struct {
	Items    []orderItemReq `json:"items"`
	Shipping shippingReq    `json:"shipping"`
}

type feeResp struct {
	Fee         int64  `json:"fee"`
	ServiceTier string `json:"serviceTier"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// shippingFee — preview фрахта до оформления заказа. Тот же селектор и тот
// же fallback, что и на checkout'е.
func (a *OrdersAPI) shippingFee(w http.ResponseWriter, r *http.Request) {
	var req feeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, WeightG: it.WeightG})
	}

	parcel := freight.Select(items)
	fee, degraded := a.svc.QuoteFee(r.Context(), toShippingInfo(req.Shipping), parcel)
	writeJSON(w, http.StatusOK, feeResp{Fee: fee, ServiceTier: parcel.ServiceTier, Degraded: degraded})
}

func (a *OrdersAPI) provinces(w http.ResponseWriter, r *http.Request) {
	out, err := a.addresses.Provinces(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *OrdersAPI) districts(w http.ResponseWriter, r *http.Request) {
	provinceID, err := strconv.Atoi(r.URL.Query().Get("provinceId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "provinceId is required")
		return
	}
	out, err := a.addresses.Districts(r.Context(), provinceID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *OrdersAPI) wards(w http.ResponseWriter, r *http.Request) {
	districtID, err := strconv.Atoi(r.URL.Query().Get("districtId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "districtId is required")
		return
	}
	out, err := a.addresses.Wards(r.Context(), districtID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func toShippingInfo(s shippingReq) models.ShippingInfo {
	return models.ShippingInfo{
		ReceiverName:  s.ReceiverName,
		ReceiverPhone: s.ReceiverPhone,
		Street:        s.Street,
		WardCode:      s.WardCode,
		DistrictID:    s.DistrictID,
		ProvinceID:    s.ProvinceID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
