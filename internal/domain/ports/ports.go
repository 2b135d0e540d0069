// Package ports declares the platform capabilities the engagement and
// offline components depend on: key/value persistence, user notification
// and outbound HTTP.
package ports

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrStoreUnavailable is returned by stores that cannot currently be reached.
var ErrStoreUnavailable = errors.New("key/value store unavailable")

// KeyValueStore persists opaque records under namespaced string keys.
type KeyValueStore interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Notification is a user-facing message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
	// Recipient is an e-mail address for notifiers that deliver by mail.
	Recipient string `json:"-"`
}

// Notifier raises user-visible notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// HTTPClient issues outbound requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Namespaced prefixes every key with a fixed namespace.
type Namespaced struct {
	Store  KeyValueStore
	Prefix string
}

// NewNamespaced joins the parts with ':' to form the key prefix.
func NewNamespaced(store KeyValueStore, parts ...string) *Namespaced {
	return &Namespaced{Store: store, Prefix: strings.Join(parts, ":") + ":"}
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.Store.Get(ctx, n.Prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.Store.Set(ctx, n.Prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.Store.Delete(ctx, n.Prefix+key)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
