package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/delivery"
	"github.com/xenking/kart-fulfillment/internal/domain/member"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/product"
	"github.com/xenking/kart-fulfillment/internal/notify"
)

type testEnv struct {
	store  *memStore
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	store.members["m1"] = &member.Member{ID: "m1", Nickname: "alice", Email: "alice@example.com", Address: "addr-1"}
	store.members["m2"] = &member.Member{ID: "m2", Nickname: "bob", Email: "bob@example.com", Address: "addr-2"}

	members := memMemberRepo{s: store}
	products := memProductRepo{s: store}
	carts := memCartRepo{s: store}
	orders := memOrderRepo{s: store}
	deliveries := memDeliveryRepo{s: store}

	h := New(
		product.NewService(products),
		cart.NewService(members, products, carts),
		order.NewService(members, products, carts, orders, notify.Nop{}),
		delivery.NewService(deliveries, members, notify.Nop{}, zap.NewNop()),
	)

	server := httptest.NewServer(h.Router())
	t.Cleanup(server.Close)
	return &testEnv{store: store, server: server}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func decodeBody[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", data)
	return v
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	return decodeBody[errorResponse](t, data).Code
}

func (e *testEnv) seedProduct(t *testing.T, name, price string, qty int) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/products", map[string]any{
		"name":          name,
		"price":         price,
		"stockQuantity": qty,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	return decodeBody[productResponse](t, body).ID
}

// --- Products ---

func TestProductCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/products", map[string]any{
		"name":          "Waffle with Berries",
		"price":         "6.50",
		"description":   "Belgian waffle",
		"imagePath":     "/images/waffle.jpg",
		"stockQuantity": 10,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[productResponse](t, body)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "IN_STOCK", created.StockStatus)
	assert.True(t, created.Price.Equal(decimal.RequireFromString("6.50")))

	resp, body = env.do(t, http.MethodGet, "/api/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decodeBody[productResponse](t, body).ID)

	resp, body = env.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]productResponse](t, body), 1)

	resp, body = env.do(t, http.MethodPut, "/api/products/"+created.ID, map[string]any{
		"name":  "Waffle",
		"price": "7.00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[productResponse](t, body)
	assert.Equal(t, "Waffle", updated.Name)
	assert.Equal(t, 10, updated.StockQuantity, "stock untouched by catalog update")

	resp, _ = env.do(t, http.MethodDelete, "/api/products/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/products/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "PRODUCT_NOT_FOUND", errorCode(t, body))
}

func TestCreateProduct_ZeroStockIsOutOfStock(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/products", map[string]any{
		"name":          "Tiramisu",
		"price":         "5.50",
		"stockQuantity": 0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "OUT_OF_STOCK", decodeBody[productResponse](t, body).StockStatus)
}

func TestCreateProduct_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/products", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// --- Carts ---

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 10)

	resp, body := env.do(t, http.MethodPost, "/api/carts/items", map[string]any{
		"memberId":  "m1",
		"productId": productID,
		"count":     2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	c := decodeBody[cartResponse](t, body)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.TotalCount)
	assert.True(t, c.TotalPrice.Equal(decimal.RequireFromString("13.00")))
	itemID := c.Items[0].ID

	// Adding the same product merges the line.
	resp, body = env.do(t, http.MethodPost, "/api/carts/items", map[string]any{
		"memberId":  "m1",
		"productId": productID,
		"count":     1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c = decodeBody[cartResponse](t, body)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.TotalCount)

	resp, body = env.do(t, http.MethodPatch, "/api/carts/items/"+itemID, map[string]any{
		"memberId": "m1",
		"delta":    -1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decodeBody[cartResponse](t, body).TotalCount)

	resp, body = env.do(t, http.MethodGet, "/api/carts/m1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decodeBody[cartResponse](t, body).TotalCount)

	// Dropping the count below one removes the line and, as the last line,
	// the cart itself.
	resp, _ = env.do(t, http.MethodPatch, "/api/carts/items/"+itemID, map[string]any{
		"memberId": "m1",
		"delta":    -2,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/carts/m1", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CART_NOT_FOUND", errorCode(t, body))
}

func TestAddCartItem_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 1)

	resp, body := env.do(t, http.MethodPost, "/api/carts/items", map[string]any{
		"memberId":  "m1",
		"productId": productID,
		"count":     5,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", errorCode(t, body))
}

func TestUpdateCartItem_OwnerMismatch(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 10)

	_, body := env.do(t, http.MethodPost, "/api/carts/items", map[string]any{
		"memberId":  "m1",
		"productId": productID,
		"count":     1,
	})
	itemID := decodeBody[cartResponse](t, body).Items[0].ID

	resp, body := env.do(t, http.MethodPatch, "/api/carts/items/"+itemID, map[string]any{
		"memberId": "m2",
		"delta":    1,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CART_ITEM_OWNER_MISMATCH", errorCode(t, body))
}

func TestDeleteCart(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 10)

	_, _ = env.do(t, http.MethodPost, "/api/carts/items", map[string]any{
		"memberId":  "m1",
		"productId": productID,
		"count":     1,
	})

	resp, _ := env.do(t, http.MethodDelete, "/api/carts/m1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/carts/m1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// --- Orders ---

func TestCreateOrder_DebitsStockAndAttachesDelivery(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 10)

	resp, body := env.do(t, http.MethodPost, "/api/orders", map[string]any{
		"memberId": "m1",
		"items":    []map[string]any{{"productId": productID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	o := decodeBody[orderResponse](t, body)
	assert.Equal(t, "addr-1", o.Address)
	assert.Equal(t, 3, o.TotalCount)
	assert.True(t, o.TotalPrice.Equal(decimal.RequireFromString("19.50")))
	require.NotEmpty(t, o.DeliveryID)

	resp, body = env.do(t, http.MethodGet, "/api/products/"+productID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7, decodeBody[productResponse](t, body).StockQuantity)

	resp, body = env.do(t, http.MethodGet, "/api/deliveries/"+o.DeliveryID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := decodeBody[deliveryResponse](t, body)
	assert.Equal(t, "READY", d.Status)
	assert.Equal(t, []string{o.ID}, d.OrderIDs)
	assert.Nil(t, d.ShippingDate)
}

func TestCreateOrder_SharedAddressConsolidates(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 10)

	place := func(memberID, address string) orderResponse {
		payload := map[string]any{
			"memberId": memberID,
			"items":    []map[string]any{{"productId": productID, "quantity": 1}},
		}
		if address != "" {
			payload["address"] = address
		}
		resp, body := env.do(t, http.MethodPost, "/api/orders", payload)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
		return decodeBody[orderResponse](t, body)
	}

	o1 := place("m1", "shared address")
	o2 := place("m2", "shared address")
	o3 := place("m2", "")

	assert.Equal(t, o1.DeliveryID, o2.DeliveryID)
	assert.NotEqual(t, o1.DeliveryID, o3.DeliveryID)
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/orders", map[string]any{
		"memberId": "m1",
		"items":    []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "EMPTY_ITEMS", errorCode(t, body))
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 5)

	_, body := env.do(t, http.MethodPost, "/api/orders", map[string]any{
		"memberId": "m1",
		"items":    []map[string]any{{"productId": productID, "quantity": 2}},
	})
	o := decodeBody[orderResponse](t, body)

	resp, _ := env.do(t, http.MethodDelete, "/api/orders/"+o.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/orders/"+o.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ORDER_NOT_FOUND", errorCode(t, body))

	_, body = env.do(t, http.MethodGet, "/api/products/"+productID, nil)
	assert.Equal(t, 5, decodeBody[productResponse](t, body).StockQuantity)

	// The emptied delivery is closed out.
	_, body = env.do(t, http.MethodGet, "/api/deliveries/"+o.DeliveryID, nil)
	assert.Equal(t, "CANCELLED", decodeBody[deliveryResponse](t, body).Status)
}

func TestCancelOrder_AfterSweepIsRefused(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 5)

	_, body := env.do(t, http.MethodPost, "/api/orders", map[string]any{
		"memberId": "m1",
		"items":    []map[string]any{{"productId": productID, "quantity": 1}},
	})
	o := decodeBody[orderResponse](t, body)

	resp, body := env.do(t, http.MethodPost, "/api/deliveries/sweep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decodeBody[sweepResponse](t, body).Started)

	resp, body = env.do(t, http.MethodDelete, "/api/orders/"+o.ID, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ORDER_ALREADY_SHIPPED", errorCode(t, body))

	_, body = env.do(t, http.MethodGet, "/api/products/"+productID, nil)
	assert.Equal(t, 4, decodeBody[productResponse](t, body).StockQuantity, "no restock")
}

func TestCheckout_ConvertsCartAndClearsIt(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 10)

	_, _ = env.do(t, http.MethodPost, "/api/carts/items", map[string]any{
		"memberId":  "m1",
		"productId": productID,
		"count":     2,
	})

	resp, body := env.do(t, http.MethodPost, "/api/carts/m1/checkout", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	o := decodeBody[orderResponse](t, body)
	assert.Equal(t, 2, o.TotalCount)
	assert.True(t, o.TotalPrice.Equal(decimal.RequireFromString("13.00")))

	resp, body = env.do(t, http.MethodGet, "/api/carts/m1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := decodeBody[cartResponse](t, body)
	assert.Empty(t, cleared.Items)
	assert.Zero(t, cleared.TotalCount)
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/carts/m1/checkout", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CART_NOT_FOUND", errorCode(t, body))
}

// --- Members ---

func TestMemberOrdersAndAddress(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 10)

	for i := 0; i < 2; i++ {
		resp, body := env.do(t, http.MethodPost, "/api/orders", map[string]any{
			"memberId": "m1",
			"items":    []map[string]any{{"productId": productID, "quantity": 1}},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "order %d: %s", i, body)
	}

	resp, body := env.do(t, http.MethodGet, "/api/members/m1/orders", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	orders := decodeBody[[]orderResponse](t, body)
	assert.Len(t, orders, 2)

	resp, _ = env.do(t, http.MethodPut, "/api/members/m1/address", map[string]any{
		"address": "new base address",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// New orders ship to the new default, old ones keep their snapshot.
	resp, body = env.do(t, http.MethodPost, "/api/orders", map[string]any{
		"memberId": "m1",
		"items":    []map[string]any{{"productId": productID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "new base address", decodeBody[orderResponse](t, body).Address)
	for _, o := range orders {
		assert.Equal(t, "addr-1", o.Address)
	}

	resp, body = env.do(t, http.MethodGet, "/api/members/ghost/orders", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "MEMBER_NOT_FOUND", errorCode(t, body))
}

// --- Deliveries ---

func TestDeliverySweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, "Waffle", "6.50", 10)

	_, body := env.do(t, http.MethodPost, "/api/orders", map[string]any{
		"memberId": "m1",
		"items":    []map[string]any{{"productId": productID, "quantity": 1}},
	})
	o := decodeBody[orderResponse](t, body)

	resp, body := env.do(t, http.MethodPost, "/api/deliveries/sweep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, decodeBody[sweepResponse](t, body).Started)

	_, body = env.do(t, http.MethodGet, "/api/deliveries/"+o.DeliveryID, nil)
	d := decodeBody[deliveryResponse](t, body)
	assert.Equal(t, "IN_PROGRESS", d.Status)
	require.NotNil(t, d.ShippingDate)

	resp, body = env.do(t, http.MethodPost, "/api/deliveries/sweep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, decodeBody[sweepResponse](t, body).Started)
}

func TestGetDelivery_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/deliveries/%s", "ghost"), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "DELIVERY_NOT_FOUND", errorCode(t, body))
}
