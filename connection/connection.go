package connection

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	purchasing "github.com/purchasekit/purchasing"
)

const (
	kindRetrieveProducts = "retrieve_products"
	kindFetchPurchases   = "fetch_purchases"
)

// Connection is a purchasing.Backend over a BillingClient.
//
// All exported methods must be called on the dispatcher's logical thread.
type Connection struct {
	client     BillingClient
	dispatcher purchasing.Dispatcher
	logger     *zap.Logger
	retry      *RetryPolicy
	poller     *PollScheduler
	hooks      []StateHook

	maxAttempts int
	attempts    int
	state       State

	products  RequestQueue
	purchases RequestQueue

	callback purchasing.BackendCallback
}

// Option configures a Connection
type Option func(*Connection)

// WithDispatcher sets the dispatcher all client callbacks go through.
// Default: purchasing.InlineDispatcher, under which timed reconnects are held
// for PollRetries instead of firing on a timer goroutine.
func WithDispatcher(d purchasing.Dispatcher) Option {
	return func(c *Connection) {
		c.dispatcher = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithMaxAttempts bounds automatic reconnection. Default: 3.
func WithMaxAttempts(n int) Option {
	return func(c *Connection) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryPolicy replaces the reconnection policy
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Connection) {
		c.retry = p
	}
}

// WithStateHook registers a hook observing state transitions
func WithStateHook(hook StateHook) Option {
	return func(c *Connection) {
		c.hooks = append(c.hooks, hook)
	}
}

// New creates a disconnected Connection
func New(client BillingClient, opts ...Option) *Connection {
	c := &Connection{
		client:      client,
		dispatcher:  purchasing.InlineDispatcher,
		logger:      zap.NewNop(),
		maxAttempts: DefaultMaxAttempts,
		state:       Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		c.retry = NewRetryPolicy()
	}
	if c.dispatcher == purchasing.InlineDispatcher && c.retry.timer {
		c.poller = NewPollScheduler(time.Now)
		c.retry.schedule = c.poller.Schedule
		c.retry.timer = false
	}
	client.SetPurchaseUpdateHandler(func(u PurchaseUpdate) {
		c.dispatcher.Dispatch(func() { c.handlePurchaseUpdate(u) })
	})
	return c
}

// Name returns the client's store name
func (c *Connection) Name() string {
	return c.client.Name()
}

// SetCallback registers the orchestrator
func (c *Connection) SetCallback(cb purchasing.BackendCallback) {
	c.callback = cb
}

// State returns the current state
func (c *Connection) State() State {
	return c.state
}

// Attempts returns the connection attempts since the last successful connect
func (c *Connection) Attempts() int {
	return c.attempts
}

// IsReady reports whether the client is connected
func (c *Connection) IsReady() bool {
	return c.state == Connected
}

// QueuedRequests returns the number of queued retrievals and purchase fetches
func (c *Connection) QueuedRequests() (products, purchases int) {
	return c.products.Len(), c.purchases.Len()
}

// PollRetries runs reconnects that have come due and returns how many ran.
// It only has work with inline dispatching and the default timer, where the
// owner of the calling goroutine must poll; every request entry point polls too.
func (c *Connection) PollRetries() int {
	if c.poller == nil {
		return 0
	}
	return c.poller.Poll()
}

// Connect starts a connection attempt unless one is in progress or established
func (c *Connection) Connect() {
	c.PollRetries()
	if c.state == Connecting || c.state == Connected {
		return
	}
	c.attempts++
	c.setState(Connecting, nil)
	c.logger.Info("connecting to billing service",
		zap.String("store", c.client.Name()),
		zap.Int("attempt", c.attempts))

	c.client.StartConnection(
		func() { c.dispatcher.Dispatch(c.onConnected) },
		func(err error) { c.dispatcher.Dispatch(func() { c.onDisconnected(err) }) },
	)
}

// ResumeConnection reconnects after attempts were exhausted or a purchase found
// the client offline. It attempts even when exhausted but keeps the counter, so a
// failed resume schedules no automatic retry.
func (c *Connection) ResumeConnection() {
	c.Connect()
}

func (c *Connection) onConnected() {
	if c.state == Connected {
		return
	}
	c.attempts = 0
	c.retry.Reset()
	c.setState(Connected, nil)
	c.logger.Info("connected to billing service", zap.String("store", c.client.Name()))
	c.drain()
}

func (c *Connection) onDisconnected(err error) {
	if c.state == Disconnected {
		return
	}
	c.setState(Disconnected, err)
	c.logger.Warn("disconnected from billing service",
		zap.String("store", c.client.Name()),
		zap.Int("attempts", c.attempts),
		zap.Error(err))

	c.drain()

	if c.exhausted() {
		c.logger.Error("billing service unavailable, connection attempts exhausted",
			zap.Int("maxAttempts", c.maxAttempts))
		return
	}
	delay := c.retry.Schedule(func() {
		c.dispatcher.Dispatch(c.retryConnection)
	})
	c.logger.Debug("reconnect scheduled", zap.Duration("delay", delay))
}

func (c *Connection) retryConnection() {
	if c.state != Disconnected || c.exhausted() {
		return
	}
	c.Connect()
}

func (c *Connection) exhausted() bool {
	return c.attempts >= c.maxAttempts
}

func (c *Connection) drain() {
	state := func() State { return c.state }
	c.products.Drain(state, c.exhausted)
	c.purchases.Drain(state, c.exhausted)
}

func (c *Connection) setState(to State, err error) {
	from := c.state
	c.state = to
	change := StateChange{From: from, To: to, Attempts: c.attempts, Err: err, Timestamp: time.Now()}
	for _, hook := range c.hooks {
		hook(change)
	}
}

// submit services r when connected; otherwise queues it, failing it first
// when the client is disconnected.
func (c *Connection) submit(q *RequestQueue, r *Request) {
	switch c.state {
	case Connected:
		r.service()
	case Connecting:
		q.Enqueue(r)
	case Disconnected:
		reason := purchasing.BillingServiceDisconnected
		if c.exhausted() {
			reason = purchasing.BillingServiceUnavailable
		}
		r.fail(reason)
		q.Enqueue(r)
	}
}

// RetrieveProducts queries product details
func (c *Connection) RetrieveProducts(defs []purchasing.ProductDefinition) {
	c.PollRetries()
	var r *Request
	r = NewRequest(kindRetrieveProducts,
		func() {
			c.client.QueryProducts(defs, func(descs []purchasing.ProductDescription, err error) {
				c.dispatcher.Dispatch(func() {
					if errors.Is(err, ErrServiceDisconnected) {
						c.submit(&c.products, r)
						return
					}
					if err != nil {
						c.callback.OnProductsRetrieveFailed(&purchasing.RetrievalFailure{
							Reason:  purchasing.BillingServiceError,
							Message: err.Error(),
						})
						return
					}
					c.callback.OnProductsRetrieved(descs)
				})
			})
		},
		func(reason purchasing.RetrievalFailureReason) {
			c.callback.OnProductsRetrieveFailed(&purchasing.RetrievalFailure{
				Reason:  reason,
				Message: "billing service is not connected",
			})
		},
	)
	c.submit(&c.products, r)
}

// FetchPurchases queries the purchases the store still holds
func (c *Connection) FetchPurchases() {
	c.PollRetries()
	var r *Request
	r = NewRequest(kindFetchPurchases,
		func() {
			c.client.QueryPurchases(func(descs []purchasing.ProductDescription, err error) {
				c.dispatcher.Dispatch(func() {
					if errors.Is(err, ErrServiceDisconnected) {
						c.submit(&c.purchases, r)
						return
					}
					if err != nil {
						c.callback.OnPurchasesFetchFailed(&purchasing.RetrievalFailure{
							Reason:  purchasing.BillingServiceError,
							Message: err.Error(),
						})
						return
					}
					c.callback.OnAllPurchasesRetrieved(descs)
				})
			})
		},
		func(reason purchasing.RetrievalFailureReason) {
			c.callback.OnPurchasesFetchFailed(&purchasing.RetrievalFailure{
				Reason:  reason,
				Message: "billing service is not connected",
			})
		},
	)
	c.submit(&c.purchases, r)
}

// Purchase launches the purchase flow. Without a connection it fails right away
// and tries to reconnect.
func (c *Connection) Purchase(cart purchasing.Cart, payload string) {
	c.PollRetries()
	if !c.IsReady() {
		storeID := ""
		if items := cart.Items(); len(items) > 0 {
			storeID = items[0].Product().Definition.StoreID()
		}
		c.logger.Warn("purchase while not connected", zap.String("storeSpecificID", storeID),
			zap.String("state", c.state.String()))
		c.callback.OnPurchaseFailed(purchasing.NewPurchaseFailure(storeID,
			purchasing.PurchasingUnavailable, "billing service is not connected"))
		c.ResumeConnection()
		return
	}
	c.client.LaunchPurchase(cart, payload)
}

// FinishTransaction acknowledges a transaction. Without a connection the call is
// dropped; the purchase comes back with the next fetch.
func (c *Connection) FinishTransaction(def purchasing.ProductDefinition, transactionID string) {
	if !c.IsReady() {
		c.logger.Warn("cannot finish transaction while not connected",
			zap.String("transactionID", transactionID))
		return
	}
	c.client.Acknowledge(def, transactionID)
}

// CheckEntitlement queries ownership of a product
func (c *Connection) CheckEntitlement(def purchasing.ProductDefinition) {
	c.PollRetries()
	storeID := def.StoreID()
	if !c.IsReady() {
		c.callback.OnEntitlementChecked(storeID, purchasing.EntitlementUnknown, "billing service is not connected")
		return
	}
	c.client.QueryEntitlement(def, func(status purchasing.EntitlementStatus, message string) {
		c.dispatcher.Dispatch(func() {
			c.callback.OnEntitlementChecked(storeID, status, message)
		})
	})
}

func (c *Connection) handlePurchaseUpdate(u PurchaseUpdate) {
	if c.callback == nil {
		c.logger.Warn("purchase update without callback", zap.String("kind", u.Kind.String()))
		return
	}
	switch u.Kind {
	case PurchaseSucceeded:
		c.callback.OnPurchaseSucceeded(u.StoreSpecificID, u.Receipt, u.TransactionID)
	case PurchaseFailed:
		failure := u.Failure
		if failure == nil {
			failure = purchasing.NewPurchaseFailure(u.StoreSpecificID, purchasing.UnknownFailure,
				fmt.Sprintf("purchase failed without details (response code %d)", u.ResponseCode))
			failure.ResponseCode = u.ResponseCode
		}
		c.callback.OnPurchaseFailed(failure)
	case PurchaseDeferred:
		c.callback.OnPurchaseDeferred(u.StoreSpecificID, u.Receipt, u.TransactionID)
	case EntitlementRevoked:
		c.callback.OnEntitlementRevoked(u.StoreSpecificID)
	}
}

var _ purchasing.Backend = (*Connection)(nil)
