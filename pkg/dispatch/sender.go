package dispatch

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	errs "redscrape/pkg/errors"
	"redscrape/pkg/proxy"
)

// maxBodySize caps how much of a response body is read into memory.
const maxBodySize = 10 << 20

// Response is what the transport hands back for one send.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Sender is the HTTP primitive: one request through one identity,
// bounded by a timeout, yielding status, headers, and body. The
// dispatcher never manages sockets itself.
type Sender interface {
	Send(ctx context.Context, req *Request, id proxy.Identity) (*Response, error)
}

// clientSender routes requests through per-identity HTTP clients,
// built lazily and reused so connection pools survive across attempts.
type clientSender struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewSender returns the default Sender with the given per-request
// timeout.
func NewSender(timeout time.Duration) Sender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &clientSender{
		timeout: timeout,
		clients: make(map[string]*http.Client),
	}
}

func (s *clientSender) clientFor(id proxy.Identity) (*http.Client, error) {
	label := id.Label()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[label]; ok {
		return c, nil
	}
	c, err := proxy.NewHTTPClient(id, s.timeout)
	if err != nil {
		return nil, err
	}
	s.clients[label] = c
	return c, nil
}

func (s *clientSender) Send(ctx context.Context, req *Request, id proxy.Identity) (*Response, error) {
	client, err := s.clientFor(id)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), req.URL, nil)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeMalformed, 0, "build request: %v", err)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Newf(errs.ErrorTypeTransport, 0, "send via %s: %v", id.Label(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Newf(errs.ErrorTypeTransport, 0, "read body via %s: %v", id.Label(), err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}
