// Package verify reconciles the seeded CSV records with the live stream of
// verification events.
//
// A [Reconciler] owns a bounded set of [TrackedItem]s: one not_uploaded
// placeholder per canonical record after [Reconciler.Seed], plus one item per
// (item code, batch, outcome) observed through [Reconciler.Apply]. Every event
// is merged or rejected atomically under one lock; readers always get a
// consistent copy.
//
// Before merging, the per-item quantity ceiling (quantity + free quantity of
// the seed record) is checked against the scans already recorded. An event
// that would exceed it raises an [OverQuantityAlert] and leaves the set
// untouched until the operator acknowledges it.
//
// The live channel is injected as an [EventSource]; [Reconciler.Connect] and
// [Reconciler.Disconnect] manage its lifecycle.
package verify
