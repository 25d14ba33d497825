package events

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketEventName is the socket.io event every build event is emitted as.
const SocketEventName = "build_event"

const connectTimeout = 15 * time.Second

// SocketIOConfig configures the socket.io sink.
type SocketIOConfig struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// OnError is called for every event that could not be delivered.
	OnError func(error)
}

type emitter interface {
	Emit(ev string, args ...any) error
}

// SocketIOSink emits events to a socket.io server.
type SocketIOSink struct {
	client  emitter
	close   func()
	onError func(error)
}

// DialSocketIO connects to a socket.io server and waits for the connection
// to be established.
func DialSocketIO(ctx context.Context, cfg SocketIOConfig) (*SocketIOSink, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", cfg.URL)
	logger.Debug("Connecting event sink.")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("events URL %q must include scheme and host", cfg.URL)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Event sink connected.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		connectChan <- connectError(errs)
	})
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}

	return newSocketIOSink(io, func() { io.Disconnect() }, cfg.OnError), nil
}

func newSocketIOSink(client emitter, closeFn func(), onError func(error)) *SocketIOSink {
	return &SocketIOSink{client: client, close: closeFn, onError: onError}
}

// connectError turns the arguments of a connect_error callback into an error.
func connectError(args []any) error {
	if len(args) == 0 {
		return errors.New("connect_error without details")
	}
	if err, ok := args[0].(error); ok && err != nil {
		return err
	}
	return fmt.Errorf("%v", args[0])
}

// Emit sends e as a build_event message. Delivery failures are logged and
// never fail the build.
func (s *SocketIOSink) Emit(ctx context.Context, e Event) {
	if err := s.client.Emit(SocketEventName, e); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to emit build event.", "error", err, "step", e.Step)
		if s.onError != nil {
			s.onError(err)
		}
	}
}

// Close disconnects from the server.
func (s *SocketIOSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
