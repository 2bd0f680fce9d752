package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	purchasing "github.com/purchasekit/purchasing"
	"github.com/purchasekit/purchasing/connection"
	"github.com/purchasekit/purchasing/dispatch"
	"github.com/purchasekit/purchasing/fakestore"
	"github.com/purchasekit/purchasing/ledger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// syncCaller runs the loop to quiescence on the calling goroutine
type syncCaller struct{ loop *dispatch.Loop }

func (s syncCaller) Call(_ context.Context, fn func()) error {
	s.loop.Dispatch(fn)
	s.loop.RunPending()
	return nil
}

type fixture struct {
	server *Server
	store  *fakestore.Store
	app    *App
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loop := dispatch.NewLoop()
	store := fakestore.New(fakestore.WithUnavailable("vip"))
	app := NewApp()
	txLog, err := ledger.New(ledger.WithStore(ledger.NewInMemoryStore()))
	require.NoError(t, err)

	conn := connection.New(store,
		connection.WithDispatcher(loop),
		connection.WithStateHook(app.OnStateChange),
		connection.WithRetryPolicy(connection.NewRetryPolicy(
			connection.WithScheduler(func(time.Duration, func()) {}))))
	orchestrator := purchasing.New(conn, app, purchasing.WithTransactionLog(txLog))

	caller := syncCaller{loop: loop}
	server, err := New(Config{
		Orchestrator: orchestrator,
		Connection:   conn,
		Store:        store,
		Ledger:       txLog,
		App:          app,
		Loop:         caller,
	})
	require.NoError(t, err)

	require.NoError(t, caller.Call(context.Background(), func() {
		require.NoError(t, orchestrator.Initialize([]purchasing.ProductDefinition{
			purchasing.NewProductDefinition("coins", purchasing.Consumable),
			purchasing.NewProductDefinition("remove_ads", purchasing.NonConsumable),
			purchasing.NewProductDefinition("vip", purchasing.Subscription),
		}))
	}))
	return &fixture{server: server, store: store, app: app}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) events(t *testing.T) []Event {
	t.Helper()
	w := f.do(t, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Events
}

func kinds(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func find(events []Event, kind string) (Event, bool) {
	for _, e := range events {
		if e.Kind == kind {
			return e, true
		}
	}
	return Event{}, false
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestHealthAndProducts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","store":"fake","initialized":true}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Products []ProductView `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 3)
	assert.True(t, resp.Products[0].AvailableToPurchase)
	assert.Equal(t, "Fake title for coins", resp.Products[0].Title)
	assert.Equal(t, "0.01", resp.Products[0].Price.String())
	assert.False(t, resp.Products[2].AvailableToPurchase, "vip is unavailable in the store")

	assert.Contains(t, kinds(f.events(t)), EventInitialized)
}

func TestPurchaseIsGrantedAndRecorded(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/purchases", gin.H{"productId": "coins"})
	require.Equal(t, http.StatusAccepted, w.Code)

	events := f.events(t)
	processed, ok := find(events, EventPurchaseProcessed)
	require.True(t, ok, "events: %v", kinds(events))
	_, ok = find(events, EventTransactionFinished)
	assert.True(t, ok)

	w = f.do(t, http.MethodGet, "/ledger/"+processed.TransactionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry struct {
		Key      string `json:"key"`
		Recorded bool   `json:"recorded"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.True(t, entry.Recorded)
	assert.Equal(t, ledger.Hash(processed.TransactionID), entry.Key)
	assert.Equal(t, []string{processed.TransactionID}, f.store.Acknowledged())
}

func TestUnavailablePurchaseFails(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/purchases", gin.H{"productId": "vip"})

	failed, ok := find(f.events(t), EventPurchaseFailed)
	require.True(t, ok)
	assert.Equal(t, "vip", failed.ProductID)
	assert.Contains(t, failed.Detail, string(purchasing.ProductUnavailable))
}

func TestManualApproval(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/store/mode", gin.H{"mode": "manual"}).Code)
	f.do(t, http.MethodPost, "/purchases", gin.H{"productId": "remove_ads"})

	pending := f.store.Pending()
	require.Len(t, pending, 1)
	_, processed := find(f.events(t), EventPurchaseProcessed)
	assert.False(t, processed)

	w := f.do(t, http.MethodPost, "/store/pending/"+pending[0].TransactionID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	e, ok := find(f.events(t), EventPurchaseProcessed)
	require.True(t, ok)
	assert.Equal(t, pending[0].TransactionID, e.TransactionID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/store/pending/nope/approve", nil).Code)
}

func TestDeferredThenDeclined(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/store/mode", gin.H{"mode": "defer"})
	f.do(t, http.MethodPost, "/purchases", gin.H{"productId": "remove_ads"})

	deferred, ok := find(f.events(t), EventPurchaseDeferred)
	require.True(t, ok)

	w := f.do(t, http.MethodPost, "/store/pending/"+deferred.TransactionID+"/decline",
		gin.H{"reason": purchasing.PaymentDeclined})
	require.Equal(t, http.StatusOK, w.Code)

	failed, ok := find(f.events(t), EventPurchaseFailed)
	require.True(t, ok)
	assert.Contains(t, failed.Detail, string(purchasing.PaymentDeclined))
}

func TestPendingPurchaseConfirmation(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/app/auto-confirm", gin.H{"enabled": false}).Code)
	f.do(t, http.MethodPost, "/purchases", gin.H{"productId": "remove_ads"})
	assert.Empty(t, f.store.Acknowledged())

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/purchases/remove_ads/confirm", nil).Code)
	assert.Len(t, f.store.Acknowledged(), 1)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/purchases/coins/confirm", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/purchases/nope/confirm", nil).Code)
}

func TestConnectionDropAndResume(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/connection/drop", nil).Code)

	var view ConnectionView
	w := f.do(t, http.MethodGet, "/connection", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "disconnected", view.State)
	assert.False(t, view.StoreConnected)

	f.do(t, http.MethodPost, "/purchases", gin.H{"productId": "coins"})
	failed, ok := find(f.events(t), EventPurchaseFailed)
	require.True(t, ok)
	assert.Contains(t, failed.Detail, string(purchasing.PurchasingUnavailable))

	w = f.do(t, http.MethodGet, "/connection", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "connected", view.State, "the failed purchase resumes the connection")

	f.do(t, http.MethodPost, "/connection/drop", nil)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/connection/resume", nil).Code)
	w = f.do(t, http.MethodGet, "/connection", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "connected", view.State)
}

func TestGrantAndRevoke(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/store/purchases", gin.H{"productId": "remove_ads"})
	require.Equal(t, http.StatusCreated, w.Code)

	f.do(t, http.MethodPost, "/purchases/fetch", nil)
	_, ok := find(f.events(t), EventPurchaseProcessed)
	require.True(t, ok, "a purchase made elsewhere is delivered by the fetch")

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/entitlements/remove_ads", nil).Code)
	checked, ok := find(f.events(t), EventEntitlementChecked)
	require.True(t, ok)
	assert.Equal(t, purchasing.FullyEntitled.String(), checked.Detail)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/store/revoke/remove_ads", nil).Code)
	_, ok = find(f.events(t), EventEntitlementRevoked)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/store/revoke/remove_ads", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/store/purchases", gin.H{"productId": "nope"}).Code)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/purchases", gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/store/mode", gin.H{"mode": "maybe"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/app/auto-confirm", gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/events?after=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/entitlements/nope", nil).Code)
}
