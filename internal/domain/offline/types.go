// Package offline implements the offline cache gateway: a versioned response
// cache populated from a manifest, an intercepting fetch path that falls
// back to the cache when the origin is unreachable, and a queue of deferred
// form submissions that are resent when a sync signal arrives.
package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotInstalled    = errors.New("gateway is not installed")
	ErrNotIntercepted  = errors.New("request is not intercepted by the gateway")
	ErrUnknownTag      = errors.New("unknown sync tag")
	ErrInvalidFormKind = errors.New("invalid form kind")
	ErrMalformedRecord = errors.New("malformed deferred submission")
)

// State is the gateway lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInstalling
	StateInstalled
	StateActive
	StateSuperseded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ResponseType follows the fetch API's notion of response tainting.
type ResponseType string

const (
	TypeBasic     ResponseType = "basic"
	TypeCORS      ResponseType = "cors"
	TypeSynthetic ResponseType = "synthetic"
)

// Source records where a Fetch result came from.
type Source string

const (
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourceFallback    Source = "offline-fallback"
	SourcePlaceholder Source = "placeholder"
)

// Response is a fully buffered HTTP response, as stored in the cache and as
// returned from Fetch.
type Response struct {
	URL      string       `json:"url"`
	Status   int          `json:"status"`
	Header   http.Header  `json:"header"`
	Body     []byte       `json:"body"`
	Type     ResponseType `json:"type"`
	StoredAt time.Time    `json:"storedAt"`

	Source Source `json:"-"`
}

// Clone returns a deep copy so cached entries are never shared with callers.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Header = r.Header.Clone()
	clone.Body = append([]byte(nil), r.Body...)
	return &clone
}

// Serve copies the response onto w.
func (r *Response) Serve(w http.ResponseWriter) {
	for key, values := range r.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("X-Gateway-Source", string(r.Source))
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

// Cache is one named set of entries keyed by request URL.
type Cache interface {
	Match(ctx context.Context, key string) (*Response, bool, error)
	Put(ctx context.Context, key string, resp *Response) error
}

// CacheStorage holds the named caches. Per-key writes are atomic.
type CacheStorage interface {
	Open(ctx context.Context, name string) (Cache, error)
	Names(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// FormKind identifies a form that can be submitted through the gateway.
type FormKind string

const (
	FormContact     FormKind = "contact"
	FormTourRequest FormKind = "tour-request"
)

// FormKinds lists every supported form.
var FormKinds = []FormKind{FormContact, FormTourRequest}

// ParseFormKind validates s.
func ParseFormKind(s string) (FormKind, error) {
	switch FormKind(s) {
	case FormContact, FormTourRequest:
		return FormKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFormKind, s)
}

// SyncTag is the name of the background-sync task for the form.
func (k FormKind) SyncTag() string {
	if k == FormContact {
		return "contact-form"
	}
	return string(k)
}

// FormKindForTag maps a sync tag back to its form.
func FormKindForTag(tag string) (FormKind, error) {
	for _, kind := range FormKinds {
		if kind.SyncTag() == tag {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTag, tag)
}

// DeferredSubmission is a form payload waiting to be resent.
type DeferredSubmission struct {
	FormKind FormKind          `json:"formKind"`
	Payload  map[string]string `json:"payload"`
}
