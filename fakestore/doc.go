// Package fakestore provides an in-process storefront implementing
// connection.BillingClient. Availability, purchase outcomes, connection
// failures and entitlements can be scripted, which makes it the backend for
// tests, the simulator and local development.
package fakestore
