// Package storage persists per-profile client documents (the cart and the
// checkout staging list) as whole-document values and fans out change
// notifications to every other writer sharing the same key.
//
// Delivery mirrors the browser storage event: a change is never delivered to
// the subscription that wrote it, and the last successful write wins.
package storage

import (
	"context"
	"strings"
)

const (
	CartKey          = "cart"
	CheckoutItemsKey = "checkoutItems"
)

// Change describes a write observed on a key.
type Change struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Origin  string `json:"origin"`
}

// Listener receives changes for a subscribed key.
type Listener func(Change)

// Store is the persistent key/value surface used by the cart and checkout.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, origin string) error
	Delete(ctx context.Context, key, origin string) error
	// Subscribe registers fn for changes to key written by any origin other
	// than the given one. The returned func cancels the subscription.
	Subscribe(key, origin string, fn Listener) func()
}

// Key scopes a document name to a profile.
func Key(profileID, name string) string {
	return "profile:" + strings.TrimSpace(profileID) + ":" + name
}
