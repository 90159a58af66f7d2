// Package fingerprint builds HTTP transports whose TLS ClientHello matches a
// real browser, so that sites applying TLS-level bot filtering serve the
// crawler the same pages they serve visitors.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	utls "github.com/refraction-networking/utls"
)

// Profile names a ClientHello shape.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	// ProfileGo keeps the standard library's TLS stack; tests use it to talk
	// to httptest servers.
	ProfileGo Profile = "go"
	// ProfileRandom picks a randomized uTLS hello per connection.
	ProfileRandom Profile = "random"
)

var helloIDs = map[Profile]utls.ClientHelloID{
	ProfileChrome:  utls.HelloChrome_Auto,
	ProfileFirefox: utls.HelloFirefox_Auto,
	ProfileSafari:  utls.HelloIOS_Auto,
	ProfileRandom:  utls.HelloRandomizedALPN,
}

// Transport returns a RoundTripper presenting the given profile. proxyFunc is
// optional and becomes the transport's Proxy when set.
func Transport(p Profile, proxyFunc func(*http.Request) (*url.URL, error)) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyFunc != nil {
		transport.Proxy = proxyFunc
	}
	if p == ProfileGo {
		return transport, nil
	}

	helloID, ok := helloIDs[p]
	if !ok {
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialUTLS(ctx, transport, helloID, network, addr)
	}
	return transport, nil
}

// dialUTLS opens a TCP connection through the transport's dialer and runs the
// uTLS handshake over it with the selected hello.
func dialUTLS(ctx context.Context, transport *http.Transport, helloID utls.ClientHelloID, network, addr string) (net.Conn, error) {
	tcpConn, err := transport.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	uConn := utls.UClient(tcpConn, &utls.Config{ServerName: host}, helloID)
	if err := uConn.HandshakeContext(ctx); err != nil {
		_ = tcpConn.Close()
		return nil, fmt.Errorf("fingerprint: utls handshake: %w", err)
	}
	return uConn, nil
}
