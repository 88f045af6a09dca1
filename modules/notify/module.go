// Package notify implements the `notify` action. It emits an event to a
// socket.io server, for example a running browser-sync instance or a team
// dashboard, and can wait for a reply event.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultTimeout bounds connecting and waiting for a reply.
const DefaultTimeout = 10 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the notify action.
type Input struct {
	URL       string         `arg:"url,required"`
	Namespace string         `arg:"namespace"`
	Event     string         `arg:"event,required"`
	Data      map[string]any `arg:"data"`
	// Await names a reply event to wait for after emitting.
	Await              string        `arg:"await"`
	Timeout            time.Duration `arg:"timeout"`
	InsecureSkipVerify bool          `arg:"insecure_skip_verify"`
}

// opResult is a private struct to safely pass results through the done channel.
type opResult struct {
	err error
}

// OnRunNotify is the handler for the `notify` action.
func OnRunNotify(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx).With("action", "notify", "url", input.URL, "event", input.Event)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	var isConnected atomic.Bool

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	namespace := input.Namespace
	if namespace == "" {
		namespace = "/"
	}

	parsedURL, err := url.Parse(input.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("url %q must include a scheme and host", input.URL)
	}

	done := make(chan opResult, 2)
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	if input.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.Once(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Debug("Connected", "namespace", namespace, "sid", io.Id())
		jsonData, _ := json.Marshal(input.Data)
		logger.Info("📣 Emitting event", "data", string(jsonData))
		io.Emit(input.Event, input.Data)
		if input.Await == "" {
			done <- opResult{}
		}
	})

	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = fmt.Errorf("connection failed: %w", e)
			}
		}
		done <- opResult{err: err}
	})

	if input.Await != "" {
		io.Once(types.EventName(input.Await), func(data ...any) {
			logger.Info("Reply received", "await", input.Await, "items", len(data))
			done <- opResult{}
		})
	}

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return fmt.Errorf("timed out after connecting while waiting for event '%s'", input.Await)
		}
		return fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		return res.err
	}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("notify", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunNotify,
	})
}
