package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	xproxy "golang.org/x/net/proxy"

	errs "redscrape/pkg/errors"
)

// NewHTTPClient builds an *http.Client that routes every request
// through the given identity. HTTP proxies use a CONNECT tunnel via
// http.ProxyURL; SOCKS5 proxies get a dedicated dialer.
func NewHTTPClient(id Identity, timeout time.Duration) (*http.Client, error) {
	switch id.Kind {
	case KindSOCKS5:
		return newSOCKS5Client(id, timeout)
	case KindHTTP, "":
		return newHTTPProxyClient(id, timeout), nil
	default:
		return nil, errs.Newf(errs.ErrorTypeMalformed, 0, "unsupported proxy kind %q", id.Kind)
	}
}

func newHTTPProxyClient(id Identity, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyURL(id.URL()),
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func newSOCKS5Client(id Identity, timeout time.Duration) (*http.Client, error) {
	var auth *xproxy.Auth
	if id.Username != "" || id.Password != "" {
		auth = &xproxy.Auth{User: id.Username, Password: id.Password}
	}

	dialer, err := xproxy.SOCKS5("tcp", id.Label(), auth, &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	})
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeTransport, 0, "socks5 dialer for %s: %v", id.Label(), err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}

	transport := &http.Transport{
		DialContext:           dialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
