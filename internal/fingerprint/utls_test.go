package fingerprint

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	utls "github.com/refraction-networking/utls"
)

// insecureDialTLS rebuilds the uTLS dial with verification disabled so the
// browser profiles can handshake against httptest's self-signed certificate.
func insecureDialTLS(tr *http.Transport, helloID utls.ClientHelloID) func(context.Context, string, string) (net.Conn, error) {
	dial := tr.DialContext
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		uConn := utls.UClient(tcpConn, &utls.Config{ServerName: host, InsecureSkipVerify: true}, helloID)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, err
		}
		return uConn, nil
	}
}

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			rt, err := Transport(p, nil)
			if err != nil {
				t.Fatalf("transport for %s: %v", p, err)
			}
			tr, ok := rt.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", rt)
			}

			if p == ProfileGo {
				tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			} else {
				tr.DialTLSContext = insecureDialTLS(tr, helloIDs[p])
			}

			client := &http.Client{Transport: tr}
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Fatalf("request with profile %s: %v", p, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	if _, err := Transport(Profile("netscape"), nil); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestTransport_ProxyFuncInstalled(t *testing.T) {
	proxyFunc := func(*http.Request) (*url.URL, error) {
		return url.Parse("http://proxy.internal:3128")
	}
	rt, err := Transport(ProfileChrome, proxyFunc)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	tr := rt.(*http.Transport)
	if tr.Proxy == nil {
		t.Fatal("proxy func not installed")
	}
	got, err := tr.Proxy(&http.Request{URL: &url.URL{Scheme: "https", Host: "example.com"}})
	if err != nil || got.Host != "proxy.internal:3128" {
		t.Errorf("proxy = %v, err = %v", got, err)
	}
}
