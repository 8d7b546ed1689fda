package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"credential-authority/internal/platform/rpc"
	"credential-authority/internal/telemetry/metrics"
)

// DefaultAttemptTimeout bounds each attempt against one endpoint.
const DefaultAttemptTimeout = 2 * time.Second

// ErrServiceUnavailable is returned when every candidate endpoint failed at the transport level.
var ErrServiceUnavailable = errors.New("directory service unavailable")

// Client calls the directory service, trying candidate endpoints in order. Transport
// failures move on to the next candidate; an answer from the service, success or
// application error, ends the call.
type Client struct {
	discovery      Discovery
	service        string
	attemptTimeout time.Duration
	newBackOff     func() backoff.BackOff
	dialOpts       []grpc.DialOption

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// Option configures a Client.
type Option func(*Client)

// WithAttemptTimeout sets the per-endpoint timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithBackOff sets the pause policy between candidates.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

// WithDialOptions replaces the default dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = opts }
}

// NewClient returns a Client for service resolved through d.
func NewClient(d Discovery, service string, opts ...Option) *Client {
	c := &Client{
		discovery:      d,
		service:        service,
		attemptTimeout: DefaultAttemptTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
		dialOpts: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		},
		conns: make(map[string]*grpc.ClientConn),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Call invokes method with in. Application errors come back as gRPC status errors;
// exhausting the candidates yields ErrServiceUnavailable.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	endpoints, err := c.discovery.Resolve(ctx, c.service)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints for %s", ErrServiceUnavailable, c.service)
	}

	next := 0
	var answered bool
	op := func() (*structpb.Struct, error) {
		ep := endpoints[next]
		next++
		out, err := c.attempt(ctx, ep, method, in)
		switch {
		case err == nil:
			metrics.ObserveDirectoryAttempt(method, "ok")
			return out, nil
		case ctx.Err() != nil:
			return nil, backoff.Permanent(ctx.Err())
		case isTransportError(err):
			metrics.ObserveDirectoryAttempt(method, "transport_error")
			log.Printf("directory: %s on %s failed: %v", method, ep, err)
			return nil, err
		default:
			metrics.ObserveDirectoryAttempt(method, "answered")
			answered = true
			return nil, backoff.Permanent(err)
		}
	}
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(len(endpoints))),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return out, nil
	}
	if answered {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func (c *Client) attempt(ctx context.Context, endpoint, method string, in *structpb.Struct) (*structpb.Struct, error) {
	conn, err := c.conn(endpoint)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	out := new(structpb.Struct)
	if err := conn.Invoke(attemptCtx, rpc.FullMethod(ServiceName, method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) conn(endpoint string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[endpoint]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(endpoint, c.dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conns[endpoint] = conn
	return conn, nil
}

// Close closes all cached connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for ep, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.conns, ep)
	}
	return errors.Join(errs...)
}

// isTransportError reports whether err means the endpoint could not answer. Dial failures
// surface as Unavailable from attempt. Every other code is an answer; retrying it elsewhere
// could repeat a Create or Update.
func isTransportError(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
