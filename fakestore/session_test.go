package fakestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	purchasing "github.com/purchasekit/purchasing"
	"github.com/purchasekit/purchasing/connection"
	"github.com/purchasekit/purchasing/fakestore"
	"github.com/purchasekit/purchasing/ledger"
)

// app is a minimal application granting everything it is offered
type app struct {
	initialized bool
	granted     []string
	failures    []purchasing.FailureReason
	result      purchasing.ProcessingResult
}

func (a *app) OnInitialized(purchasing.Controller) { a.initialized = true }
func (a *app) OnInitializeFailed(purchasing.InitializationFailureReason, string) {}

func (a *app) ProcessPurchase(e purchasing.PurchaseEvent) purchasing.ProcessingResult {
	a.granted = append(a.granted, e.Order.Info().TransactionID)
	return a.result
}

func (a *app) OnPurchaseFailed(_ *purchasing.Product, d *purchasing.PurchaseFailureDescription) {
	a.failures = append(a.failures, d.Reason)
}

type session struct {
	conn         *connection.Connection
	orchestrator *purchasing.Orchestrator
	app          *app
	timers       []func()
}

// start wires a full session over store and a shared ledger store, using
// inline dispatching and hand-fired reconnect timers.
func start(t *testing.T, store *fakestore.Store, txStore ledger.Store) *session {
	t.Helper()
	s := &session{app: &app{}}
	l, err := ledger.New(ledger.WithStore(txStore))
	require.NoError(t, err)

	retry := connection.NewRetryPolicy(connection.WithScheduler(func(_ time.Duration, fn func()) {
		s.timers = append(s.timers, fn)
	}))
	s.conn = connection.New(store, connection.WithRetryPolicy(retry))
	s.orchestrator = purchasing.New(s.conn, s.app, purchasing.WithTransactionLog(l))
	require.NoError(t, s.orchestrator.Initialize([]purchasing.ProductDefinition{
		purchasing.NewProductDefinition("coins", purchasing.Consumable),
		purchasing.NewProductDefinition("remove_ads", purchasing.NonConsumable),
	}))
	return s
}

func (s *session) fireTimers() {
	timers := s.timers
	s.timers = nil
	for _, fn := range timers {
		fn()
	}
}

func TestSessionPurchaseIsRecordedAndAcknowledged(t *testing.T) {
	store := fakestore.New()
	txStore := ledger.NewInMemoryStore()
	s := start(t, store, txStore)
	require.True(t, s.app.initialized)

	s.orchestrator.InitiatePurchaseByID("coins", "")

	require.Len(t, s.app.granted, 1)
	txID := s.app.granted[0]
	assert.Equal(t, []string{txID}, store.Acknowledged())
	found, err := txStore.Exists(context.Background(), ledger.Hash(txID))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, store.Owned(), "consumable was consumed")
}

func TestSessionRestartDoesNotGrantTwice(t *testing.T) {
	store := fakestore.New()
	txStore := ledger.NewInMemoryStore()
	ads := purchasing.NewProductDefinition("remove_ads", purchasing.NonConsumable)
	txID := store.AddPurchase(ads)

	first := start(t, store, txStore)
	assert.Equal(t, []string{txID}, first.app.granted)

	second := start(t, store, txStore)
	assert.Empty(t, second.app.granted)
	acks := store.Acknowledged()
	require.NotEmpty(t, acks)
	for _, id := range acks {
		assert.Equal(t, txID, id, "known transactions are still finished")
	}
}

func TestSessionRecoversFromConnectionFailures(t *testing.T) {
	store := fakestore.New()
	store.ScriptConnect(fakestore.ErrConnectionDropped)
	s := start(t, store, ledger.NewInMemoryStore())

	assert.False(t, s.app.initialized)
	assert.Equal(t, connection.Disconnected, s.conn.State())

	s.fireTimers()
	assert.True(t, s.app.initialized)
	assert.Equal(t, connection.Connected, s.conn.State())

	store.Drop(nil)
	s.orchestrator.InitiatePurchaseByID("remove_ads", "")
	assert.Equal(t, []purchasing.FailureReason{purchasing.PurchasingUnavailable}, s.app.failures)
	assert.Equal(t, connection.Connected, s.conn.State(), "a purchase while offline resumes the connection")

	s.orchestrator.InitiatePurchaseByID("remove_ads", "")
	assert.Len(t, s.app.granted, 1)
}

func TestSessionPendingPurchaseSurvivesUntilConfirmed(t *testing.T) {
	store := fakestore.New()
	txStore := ledger.NewInMemoryStore()
	s := start(t, store, txStore)
	s.app.result = purchasing.Pending

	s.orchestrator.InitiatePurchaseByID("remove_ads", "")
	require.Len(t, s.app.granted, 1)
	assert.Empty(t, store.Acknowledged())

	p := s.orchestrator.Products().WithID("remove_ads")
	require.NoError(t, s.orchestrator.ConfirmPendingPurchase(p))
	assert.Equal(t, s.app.granted, store.Acknowledged())
	assert.Equal(t, 1, txStore.Len())
}

func TestSessionOwnedPendingPurchaseIsOfferedOnce(t *testing.T) {
	store := fakestore.New()
	txID := store.AddPurchase(purchasing.NewProductDefinition("remove_ads", purchasing.NonConsumable))
	l, err := ledger.New(ledger.WithStore(ledger.NewInMemoryStore()))
	require.NoError(t, err)

	a := &app{result: purchasing.Pending}
	conn := connection.New(store, connection.WithRetryPolicy(connection.NewRetryPolicy(
		connection.WithScheduler(func(time.Duration, func()) {}))))
	o := purchasing.New(conn, a, purchasing.WithTransactionLog(l))
	require.NoError(t, o.Initialize([]purchasing.ProductDefinition{
		purchasing.NewProductDefinition("remove_ads", purchasing.NonConsumable),
	}))

	require.True(t, a.initialized)
	assert.Equal(t, []string{txID}, a.granted)
	assert.Empty(t, store.Acknowledged())
}
