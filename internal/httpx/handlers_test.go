package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-orders/internal/memstore"
	"github.com/ariefcatur/go-stock-orders/internal/orders"
	"github.com/ariefcatur/go-stock-orders/internal/redisx"
)

type testAPI struct {
	srv     *httptest.Server
	store   *memstore.Store
	mgr     *orders.Manager
	catalog *orders.Catalog
}

func newTestAPI(t *testing.T, cache *redisx.Cache, products ...orders.Product) *testAPI {
	t.Helper()
	st := memstore.New()
	st.Seed(products...)
	log := zap.NewNop()
	a := &testAPI{store: st, mgr: orders.NewManager(st), catalog: orders.NewCatalog(st, log)}

	r := NewRouter(log, nil)
	(&ProductsHandler{Catalog: a.catalog, Cache: cache, Log: log}).Register(r)
	(&OrdersHandler{Orders: a.mgr, Cache: cache, Log: log}).Register(r)
	a.srv = httptest.NewServer(r)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body any, hdr ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func seeded(id string, priceCents int64, stock int) orders.Product {
	return orders.Product{ID: id, Name: "item " + id, PriceCents: priceCents, StockQuantity: stock}
}

func (a *testAPI) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := a.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t, nil)
	res := a.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestProductCRUD(t *testing.T) {
	a := newTestAPI(t, nil)

	res := a.do(t, http.MethodPost, "/products", `{"name":"Notebook","price":"12.50","stock_quantity":40}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	p := decode[ProductResp](t, res)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, 40, p.StockQuantity)

	res = a.do(t, http.MethodPut, "/products/"+p.ID, `{"price":"11.00"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	p = decode[ProductResp](t, res)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, "Notebook", p.Name)

	res = a.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]ProductResp](t, res), 1)

	res = a.do(t, http.MethodDelete, "/products/"+p.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = a.do(t, http.MethodGet, "/products/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestProductValidation(t *testing.T) {
	a := newTestAPI(t, nil)

	cases := map[string]string{
		"missing name":   `{"price":"1.00","stock_quantity":1}`,
		"zero price":     `{"name":"x","price":"0","stock_quantity":1}`,
		"sub-cent price": `{"name":"x","price":"1.005","stock_quantity":1}`,
		"negative stock": `{"name":"x","price":"1.00","stock_quantity":-1}`,
		"bad json":       `{"name":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := a.do(t, http.MethodPost, "/products", body)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	a := newTestAPI(t, nil, seeded("p1", 250, 10), seeded("p2", 100, 5))

	res := a.do(t, http.MethodPost, "/orders", CreateOrderReq{
		Customer: "maya",
		Items:    []orders.ItemInput{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 3}},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	o := decode[OrderResp](t, res)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("8.00")))
	require.Len(t, o.Items, 2)
	assert.True(t, o.Items[0].UnitPrice.Equal(decimal.RequireFromString("2.50")))
	assert.Equal(t, 8, a.stock(t, "p1"))
	assert.Equal(t, 2, a.stock(t, "p2"))

	res = a.do(t, http.MethodPut, "/orders/"+o.ID, `{"items":[{"product_id":"p1","quantity":1}]}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	o = decode[OrderResp](t, res)
	assert.Equal(t, "maya", o.Customer)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("2.50")))
	assert.Equal(t, 9, a.stock(t, "p1"))
	assert.Equal(t, 5, a.stock(t, "p2"))

	res = a.do(t, http.MethodGet, "/orders/"+o.ID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, o.ID, decode[OrderResp](t, res).ID)

	res = a.do(t, http.MethodDelete, "/orders/"+o.ID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, 10, a.stock(t, "p1"))

	res = a.do(t, http.MethodGet, "/orders/"+o.ID, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	a := newTestAPI(t, nil, seeded("p1", 100, 5))

	res := a.do(t, http.MethodPost, "/orders", `{"customer":"li","items":[{"product_id":"p1","quantity":6}]}`)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	body := decode[map[string]any](t, res)
	assert.Equal(t, "p1", body["product_id"])
	assert.EqualValues(t, 5, body["available"])
	assert.EqualValues(t, 6, body["requested"])
	assert.Equal(t, 5, a.stock(t, "p1"))
}

func TestCreateOrderErrors(t *testing.T) {
	a := newTestAPI(t, nil, seeded("p1", 100, 5))

	res := a.do(t, http.MethodPost, "/orders", `{"customer":"li","items":[{"product_id":"nope","quantity":1}]}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = a.do(t, http.MethodPost, "/orders", `{"customer":"li","items":[]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = a.do(t, http.MethodPost, "/orders", `{"customer":"li","items":[{"product_id":"p1","quantity":0}]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = a.do(t, http.MethodPost, "/orders", `{"customer":"","items":[{"product_id":"p1","quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestDeleteProductInUse(t *testing.T) {
	a := newTestAPI(t, nil, seeded("p1", 100, 5))
	_, err := a.mgr.Create(context.Background(), "kim", []orders.ItemInput{{ProductID: "p1", Quantity: 1}})
	require.NoError(t, err)

	res := a.do(t, http.MethodDelete, "/products/p1", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestCreateOrderReplaysIdempotencyKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := redisx.NewCache(db, nil)
	a := newTestAPI(t, cache, seeded("p1", 100, 5))

	existing, err := a.mgr.Create(context.Background(), "kim", []orders.ItemInput{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)
	mock.ExpectSetNX("idem:order:create:abc", "pending", redisx.TTLIdemPending).SetVal(false)
	mock.ExpectGet("idem:order:create:abc").SetVal(existing.ID)

	res := a.do(t, http.MethodPost, "/orders",
		`{"customer":"kim","items":[{"product_id":"p1","quantity":2}]}`,
		HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "true", res.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, existing.ID, decode[OrderResp](t, res).ID)
	assert.Equal(t, 3, a.stock(t, "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderKeyInFlightIsRejected(t *testing.T) {
	db, mock := redismock.NewClientMock()
	a := newTestAPI(t, redisx.NewCache(db, nil), seeded("p1", 100, 5))

	mock.ExpectSetNX("idem:order:create:abc", "pending", redisx.TTLIdemPending).SetVal(false)
	mock.ExpectGet("idem:order:create:abc").SetVal("pending")

	res := a.do(t, http.MethodPost, "/orders",
		`{"customer":"kim","items":[{"product_id":"p1","quantity":2}]}`,
		HeaderIdempotencyKey, "abc")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, 5, a.stock(t, "p1"))
	all, err := a.mgr.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderFailureReleasesKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	a := newTestAPI(t, redisx.NewCache(db, nil), seeded("p1", 100, 1))

	mock.ExpectSetNX("idem:order:create:abc", "pending", redisx.TTLIdemPending).SetVal(true)
	mock.ExpectDel("idem:order:create:abc").SetVal(1)

	res := a.do(t, http.MethodPost, "/orders",
		`{"customer":"kim","items":[{"product_id":"p1","quantity":2}]}`,
		HeaderIdempotencyKey, "abc")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceAboveCapRejected(t *testing.T) {
	a := newTestAPI(t, nil)

	res := a.do(t, http.MethodPost, "/products", `{"name":"x","price":"92233720368547758.08","stock_quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = a.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[[]ProductResp](t, res))
}

func TestProductNameIsTrimmed(t *testing.T) {
	a := newTestAPI(t, nil)

	res := a.do(t, http.MethodPost, "/products", `{"name":"  Notebook  ","price":"1.00","stock_quantity":1}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	p := decode[ProductResp](t, res)
	assert.Equal(t, "Notebook", p.Name)

	res = a.do(t, http.MethodPut, "/products/"+p.ID, `{"name":" Ledger "}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Ledger", decode[ProductResp](t, res).Name)
}
