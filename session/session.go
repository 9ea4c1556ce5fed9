// Package session is the connection layer the transfer queue schedules
// against. A Session is one logical context per remote site; it hands out a
// bounded number of Connections, each backed by a provider.Provider.
//
// Everything in this package except dialing is confined to the orchestration
// loop. Dial results come back through the Poster.
package session

import (
	"errors"
	"net/url"

	"github.com/franksops/gofastq/provider"
)

// ErrUnsupportedScheme is returned for URLs no dialer is registered for.
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// Poster delivers fn onto the orchestration loop.
type Poster func(fn func())

// Session is a logical connection context to one remote endpoint.
type Session interface {
	// Key identifies the site (scheme, credentials, host and port).
	Key() string
	// URL is the site URL without a path.
	URL() *url.URL
	// HasFreeConnection reports whether AcquireConnection would succeed.
	HasFreeConnection() bool
	// AcquireConnection reserves a connection for requester, or returns nil
	// when the pool is exhausted.
	AcquireConnection(requester any) Connection
	// OnConnectionFreed subscribes key to "a connection was released".
	OnConnectionFreed(key any, fn func())
	// OffConnectionFreed removes the subscription made under key.
	OffConnectionFreed(key any)
}

// Connection is one pooled network channel of a Session.
type Connection interface {
	Session() Session
	// IsConnected reports whether the channel is established and usable.
	IsConnected() bool
	// OnConnected subscribes key to the outcome of the pending dial. A nil
	// error means the connection is ready.
	OnConnected(key any, fn func(err error))
	// OffConnected removes the subscription made under key.
	OffConnected(key any)
	// Provider is the backend to run operations on. Only valid while connected.
	Provider() provider.Provider
	// MarkBroken makes Release discard the channel instead of pooling it.
	MarkBroken()
	// Release returns the connection to its session.
	Release()
}

// SiteKey deduplicates sites: scheme, user, whether a password is set,
// host and port. The password itself never enters the key.
func SiteKey(u *url.URL) string {
	user := ""
	if u.User != nil {
		user = u.User.Username()
		if _, ok := u.User.Password(); ok {
			user += ":*"
		}
		user += "@"
	}
	host := u.Hostname()
	if port := u.Port(); port != "" {
		host += ":" + port
	} else if p := defaultPort(u.Scheme); p != "" {
		host += ":" + p
	}
	return u.Scheme + "://" + user + host
}

func defaultPort(scheme string) string {
	switch scheme {
	case "ftp", "ftps":
		return "21"
	}
	return ""
}

// SiteURL strips the path, query and fragment from u.
func SiteURL(u *url.URL) *url.URL {
	return &url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host}
}
