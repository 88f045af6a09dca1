// Package devserver serves the built application during development and
// pushes live-reload notifications to connected browsers over a websocket.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
)

const (
	// ReloadPath is the websocket endpoint browsers connect to.
	ReloadPath = "/__livereload"
	// ScriptPath serves the client script injected into HTML pages.
	ScriptPath = "/__livereload.js"

	reloadMessage = "reload"
	writeTimeout  = 5 * time.Second
)

const clientScript = `(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "` + ReloadPath + `");
  ws.onmessage = function (e) { if (e.data === "` + reloadMessage + `") { location.reload(); } };
})();
`

var scriptTag = []byte(`<script src="` + ScriptPath + `"></script>`)

// Server is a static file server with a live-reload hub. The zero value is
// not usable; call New.
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	srv     *http.Server
	addr    string
	done    chan struct{}
	clients map[*websocket.Conn]struct{}
}

var _ action.DevServer = (*Server)(nil)

// New creates an idle Server.
func New() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Serve starts listening on opts.Port (0 picks a free port) and returns the
// bound address. Calling Serve while running returns the existing address.
func (s *Server) Serve(ctx context.Context, opts action.ServeOptions) (string, error) {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		logger.Debug("Dev server already running.", "address", s.addr)
		return s.addr, nil
	}

	info, err := os.Stat(opts.Root)
	if err != nil {
		return "", fmt.Errorf("dev server root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("dev server root %s is not a directory", opts.Root)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return "", fmt.Errorf("failed to listen on port %d: %w", opts.Port, err)
	}

	// The server outlives the task that started it.
	base := context.WithoutCancel(ctx)
	s.srv = &http.Server{
		Handler:           s.handler(base, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addr = ln.Addr().String()
	s.done = make(chan struct{})

	srv, done := s.srv, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Dev server failed unexpectedly", "error", err)
		}
	}()

	logger.Info("🌐 Dev server started", "address", "http://"+displayAddr(s.addr), "root", opts.Root, "livereload", opts.LiveReload)
	return s.addr, nil
}

// Handler returns the HTTP handler Serve would install. Tests mount it on
// httptest servers.
func (s *Server) Handler(ctx context.Context, opts action.ServeOptions) http.Handler {
	return s.handler(ctx, opts)
}

func (s *Server) handler(ctx context.Context, opts action.ServeOptions) http.Handler {
	logger := ctxlog.FromContext(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(func(c *gin.Context) {
		c.Next()
		logger.Debug("Dev server request.", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	})

	engine.GET(ReloadPath, func(c *gin.Context) { s.handleSocket(ctx, c) })
	engine.GET(ScriptPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(clientScript))
	})

	prefixes := make([]string, 0, len(opts.Routes))
	for prefix := range opts.Routes {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		engine.Static("/"+strings.Trim(prefix, "/"), opts.Routes[prefix])
	}

	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusMethodNotAllowed)
			return
		}
		s.serveFile(c, opts)
	})
	return engine
}

// serveFile serves a file under opts.Root. Extension-less paths that do not
// exist fall back to index.html so client-side routes work.
func (s *Server) serveFile(c *gin.Context, opts action.ServeOptions) {
	rel := path.Clean("/" + c.Request.URL.Path)
	full := filepath.Join(opts.Root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	switch {
	case err == nil && info.IsDir():
		full = filepath.Join(full, "index.html")
	case err != nil && path.Ext(rel) == "":
		full = filepath.Join(opts.Root, "index.html")
	case err != nil:
		c.Status(http.StatusNotFound)
		return
	}

	if !opts.LiveReload || filepath.Ext(full) != ".html" {
		if _, err := os.Stat(full); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(full)
		return
	}

	page, err := os.ReadFile(full)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", injectScript(page))
}

// injectScript adds the live-reload script tag before </body>, or at the
// end of the page when there is none.
func injectScript(page []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if idx < 0 {
		return append(append([]byte{}, page...), scriptTag...)
	}
	out := make([]byte, 0, len(page)+len(scriptTag))
	out = append(out, page[:idx]...)
	out = append(out, scriptTag...)
	return append(out, page[idx:]...)
}

func (s *Server) handleSocket(ctx context.Context, c *gin.Context) {
	logger := ctxlog.FromContext(ctx)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Live-reload upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	logger.Debug("Live-reload client connected.", "remote_addr", conn.RemoteAddr().String())

	// Browsers never send anything; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.drop(conn)
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// Reload tells every connected browser to reload and returns how many
// received the message.
func (s *Server) Reload(ctx context.Context) int {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	sent := 0
	for conn := range s.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reloadMessage)); err != nil {
			logger.Debug("Dropping live-reload client.", "error", err)
			delete(s.clients, conn)
			_ = conn.Close()
			continue
		}
		sent++
	}
	logger.Info("🔄 Browser reload sent", "clients", sent)
	return sent
}

// Clients returns the number of connected live-reload clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Running reports whether Serve started a listener.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Addr returns the bound address, or "" when idle.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops the listener and closes every live-reload connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.addr, s.done = nil, "", nil
	for conn := range s.clients {
		_ = conn.Close()
		delete(s.clients, conn)
	}
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctxlog.FromContext(ctx).Info("🌐 Shutting down dev server...")
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	<-done
	return nil
}

func displayAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
