// Package connection manages the link between the orchestrator and a storefront's
// native billing client.
//
// A Connection implements purchasing.Backend on top of a BillingClient. It tracks
// connectivity as a three-state machine (Disconnected, Connecting, Connected),
// reconnects with exponential backoff up to a bounded number of attempts, and
// buffers product retrievals and purchase fetches in RequestQueues while the
// client is not connected.
//
// Every BillingClient callback is marshalled through the configured
// purchasing.Dispatcher before any state is touched. Purchases are not queued.
package connection
