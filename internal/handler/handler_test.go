package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-engine/internal/domain/auth"
	"github.com/xenking/checkout-engine/internal/domain/cart"
	"github.com/xenking/checkout-engine/internal/domain/catalog"
	"github.com/xenking/checkout-engine/internal/domain/discount"
	"github.com/xenking/checkout-engine/internal/domain/order"
	"github.com/xenking/checkout-engine/internal/domain/payment"
	"github.com/xenking/checkout-engine/internal/domain/stock"
	"github.com/xenking/checkout-engine/pkg/lock"
)

// memStore backs every repository interface with in-process maps so the
// handlers run against the real domain services.
type memStore struct {
	carts    map[string]*cart.Cart
	variants map[string]*catalog.Variant
	codes    map[string]*discount.Discount
	orders   map[string]*order.Order // keyed by id
	payments map[string]*payment.Payment
	events   map[string]bool
	keys     map[string]*auth.APIKey
}

func newMemStore() *memStore {
	return &memStore{
		carts:    map[string]*cart.Cart{},
		variants: map[string]*catalog.Variant{},
		codes:    map[string]*discount.Discount{},
		orders:   map[string]*order.Order{},
		payments: map[string]*payment.Payment{},
		events:   map[string]bool{},
		keys:     map[string]*auth.APIKey{},
	}
}

func (s *memStore) Get(_ context.Context, userID string) (*cart.Cart, error) {
	if c, ok := s.carts[userID]; ok {
		return c, nil
	}
	return &cart.Cart{UserID: userID}, nil
}

func (s *memStore) Clear(_ context.Context, userID string) error {
	delete(s.carts, userID)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*catalog.Variant, error) {
	v, ok := s.variants[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return v, nil
}

func (s *memStore) GetByIDs(_ context.Context, ids []string) ([]catalog.Variant, error) {
	out := make([]catalog.Variant, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.variants[id]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *memStore) Reserve(_ context.Context, id string, qty int) error {
	v, ok := s.variants[id]
	if !ok || v.Available() < qty {
		return &stock.OutOfStockError{VariantID: id, Requested: qty}
	}
	v.Reserved += qty
	return nil
}

func (s *memStore) Release(_ context.Context, id string, qty int) error {
	v := s.variants[id]
	if v == nil || v.Reserved < qty {
		return stock.ErrDoubleRelease
	}
	v.Reserved -= qty
	return nil
}

func (s *memStore) Commit(_ context.Context, id string, qty int) error {
	v := s.variants[id]
	if v == nil || v.Reserved < qty {
		return stock.ErrDoubleRelease
	}
	v.Reserved -= qty
	v.StockOnHand -= qty
	return nil
}

func (s *memStore) FindByCode(_ context.Context, code string) (*discount.Discount, error) {
	d, ok := s.codes[code]
	if !ok {
		return nil, discount.ErrInvalidCode
	}
	return d, nil
}

func (s *memStore) ConsumeUse(_ context.Context, code string) error {
	d, ok := s.codes[code]
	if !ok {
		return discount.ErrInvalidCode
	}
	if d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
		return discount.ErrUsageLimitReached
	}
	d.UsageCount++
	return nil
}

func (s *memStore) Create(_ context.Context, o *order.Order) error {
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) GetOrderByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *memStore) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	for _, o := range s.orders {
		if o.Number == number {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *memStore) NumberExists(_ context.Context, number string) (bool, error) {
	_, err := s.GetByNumber(context.Background(), number)
	return err == nil, nil
}

func (s *memStore) UpdateStatus(context.Context, *order.Order) error { return nil }

func (s *memStore) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	k, ok := s.keys[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return k, nil
}

// ordersView adapts memStore to order.Repository; GetByID collides with the
// catalog method, hence the rename on the store itself.
type ordersView struct{ *memStore }

func (v ordersView) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return v.GetOrderByID(ctx, id)
}

type paymentsView struct{ *memStore }

func (v paymentsView) Create(_ context.Context, p *payment.Payment) error {
	if _, ok := v.payments[p.OrderID]; ok {
		return payment.ErrAlreadyExists
	}
	v.payments[p.OrderID] = p
	return nil
}

func (v paymentsView) GetByOrderID(_ context.Context, orderID string) (*payment.Payment, error) {
	p, ok := v.payments[orderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return p, nil
}

func (v paymentsView) Update(_ context.Context, p *payment.Payment) error {
	v.payments[p.OrderID] = p
	return nil
}

func (v paymentsView) ListExpired(context.Context, time.Time, int) ([]payment.ExpiredPayment, error) {
	return nil, nil
}

func (v paymentsView) Record(_ context.Context, provider, transactionID, eventType string, _ []byte) (bool, error) {
	key := provider + "/" + transactionID + "/" + eventType
	if v.events[key] {
		return false, nil
	}
	v.events[key] = true
	return true, nil
}

type checkoutUOW struct{ store *memStore }

func (u checkoutUOW) WithTx(ctx context.Context, fn func(ctx context.Context, r order.TxRepos) error) error {
	return fn(ctx, order.TxRepos{
		Carts:     u.store,
		Variants:  u.store,
		Stock:     u.store,
		Discounts: u.store,
		Orders:    ordersView{u.store},
	})
}

type reconcileUOW struct{ store *memStore }

func (u reconcileUOW) WithTx(ctx context.Context, fn func(ctx context.Context, r payment.ReconcileRepos) error) error {
	return fn(ctx, payment.ReconcileRepos{
		Orders:   ordersView{u.store},
		Payments: paymentsView{u.store},
		Stock:    u.store,
		Events:   paymentsView{u.store},
	})
}

// gwStub is a deterministic payment.Gateway for handler tests.
type gwStub struct{}

func (gwStub) Name() string { return "stub" }

func (gwStub) CreateSession(context.Context, payment.SessionRequest) (*payment.Session, error) {
	return &payment.Session{Token: "tok-1", RedirectURL: "https://pay.example/tok-1"}, nil
}

type gwStubNotification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	SignatureKey      string `json:"signature_key"`
}

func (gwStub) ParseNotification(raw []byte) (*payment.Notification, error) {
	var body gwStubNotification
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return &payment.Notification{
		OrderNumber:       body.OrderID,
		TransactionID:     body.TransactionID,
		TransactionStatus: body.TransactionStatus,
		SignatureKey:      body.SignatureKey,
		Raw:               raw,
	}, nil
}

func (gwStub) VerifySignature(n *payment.Notification) bool {
	return n.SignatureKey == "good"
}

func (gwStub) MapStatus(n *payment.Notification) payment.Status {
	switch n.TransactionStatus {
	case "settlement":
		return payment.StatusSuccess
	case "pending":
		return payment.StatusProcessing
	case "deny":
		return payment.StatusFailed
	case "expire":
		return payment.StatusExpired
	case "refund":
		return payment.StatusRefunded
	default:
		return payment.StatusFailed
	}
}

const testPepper = "test-pepper"

type testServer struct {
	store *memStore
	mux   *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := newMemStore()

	store.keys[HashKey([]byte(testPepper), "key-u1")] = &auth.APIKey{
		KeyHash: HashKey([]byte(testPepper), "key-u1"),
		OwnerID: "u1",
		Name:    "test",
	}

	checkout := order.NewCheckout(checkoutUOW{store}, nil, order.CheckoutConfig{
		ShippingCost: decimal.RequireFromString("5.00"),
	})
	payments := payment.NewService(paymentsView{store}, gwStub{}, payment.ServiceConfig{})
	reconciler := payment.NewReconciler(reconcileUOW{store}, []payment.Gateway{gwStub{}}, lock.NewMemory(), nil)

	h := NewHandler(checkout, ordersView{store}, payments, reconciler)
	authMW := NewAPIKeyAuth(store, []byte(testPepper))

	mux := http.NewServeMux()
	h.Register(mux, authMW.Middleware)
	return &testServer{store: store, mux: mux}
}

func (ts *testServer) seedCatalog() {
	ts.store.variants["v1"] = &catalog.Variant{
		ID:          "v1",
		ProductName: "Widget",
		Price:       decimal.RequireFromString("100.00"),
		IsActive:    true,
		StockOnHand: 5,
	}
}

func (ts *testServer) do(t *testing.T, method, path, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

const shippingBody = `{"shipping":{"name":"Ada","phone":"+62811","address":"1 Way","city":"Jakarta","postal_code":"10110"}}`

func TestPlaceOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCatalog()
	ts.store.carts["u1"] = &cart.Cart{UserID: "u1", Items: []cart.Item{{VariantID: "v1", Quantity: 2}}}

	rec := ts.do(t, http.MethodPost, "/api/orders", "key-u1", shippingBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Number, "ORD-"))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "200.00", resp.Subtotal)
	assert.Equal(t, "205.00", resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Widget", resp.Items[0].ProductName)

	assert.Equal(t, 2, ts.store.variants["v1"].Reserved)
	_, hasCart := ts.store.carts["u1"]
	assert.False(t, hasCart)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "key-u1", shippingBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderOutOfStock(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCatalog()
	ts.store.carts["u1"] = &cart.Cart{UserID: "u1", Items: []cart.Item{{VariantID: "v1", Quantity: 9}}}

	rec := ts.do(t, http.MethodPost, "/api/orders", "key-u1", shippingBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, ts.store.variants["v1"].Reserved)
}

func TestPlaceOrderMissingAPIKey(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "", shippingBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrderWrongAPIKey(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "nope", shippingBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	ts := newTestServer(t)
	ts.store.orders["ord-9"] = &order.Order{ID: "ord-9", Number: "ORD-X", UserID: "someone-else", Status: order.StatusPending}

	rec := ts.do(t, http.MethodGet, "/api/orders/ORD-X", "key-u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCatalog()
	ts.store.carts["u1"] = &cart.Cart{UserID: "u1", Items: []cart.Item{{VariantID: "v1", Quantity: 1}}}

	rec := ts.do(t, http.MethodPost, "/api/orders", "key-u1", shippingBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/pay", placed.Number), "key-u1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp paymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-1", resp.Token)
	assert.Equal(t, "stub", resp.Provider)
	assert.Equal(t, "105.00", resp.Amount)
	assert.NotNil(t, resp.ExpiresAt)
}

func TestPayOrderUnknownNumber(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders/ORD-NOPE/pay", "key-u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
