package wirecheck

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// mockHandler implements Handler interface for testing
type mockHandler struct {
	mu       sync.Mutex
	conns    []net.Conn
	handleCh chan net.Conn
	release  chan struct{}
	err      error
}

func newMockHandler() *mockHandler {
	return &mockHandler{
		conns:    make([]net.Conn, 0),
		handleCh: make(chan net.Conn, 10),
	}
}

func (h *mockHandler) Handle(ctx context.Context, conn net.Conn) error {
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	select {
	case h.handleCh <- conn:
	default:
	}

	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
		}
	}
	return h.err
}

func (h *mockHandler) getConns() []net.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}
	server, err := New(addr, ServerLoggerOption(Discard))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return server
}

func TestNew(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	if server.listener == nil {
		t.Error("listener is nil")
	}
}

func TestNew_InvalidAddr(t *testing.T) {
	// First create a listener to occupy a port
	server1 := newTestServer(t)
	defer server1.Close()

	// Try to listen on the same port - should fail
	occupiedAddr := server1.listener.Addr().(*net.TCPAddr)
	_, err := New(occupiedAddr, ServerLoggerOption(Discard))
	if !errors.Is(err, ErrBind) {
		t.Errorf("expected ErrBind for occupied port, got %v", err)
	}
}

func TestListen(t *testing.T) {
	server, err := Listen(0, ServerLoggerOption(Discard))
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	port := server.Addr().(*net.TCPAddr).Port
	if port == 0 {
		t.Fatal("expected an assigned port")
	}

	// The wildcard socket accepts IPv4 clients whichever family it bound.
	conn, err := net.DialTimeout("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 5*time.Second)
	if err != nil {
		t.Fatalf("IPv4 dial failed: %v", err)
	}
	conn.Close()

	_, err = Listen(port, ServerLoggerOption(Discard))
	if !errors.Is(err, ErrBind) {
		t.Errorf("expected ErrBind for occupied port, got %v", err)
	}
}

func TestServer_Close(t *testing.T) {
	server := newTestServer(t)

	err := server.Close()
	if err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Verify listener is closed by trying to accept
	_, err = server.listener.Accept()
	if err == nil {
		t.Error("expected error after close")
	}
}

func TestServer_Addr(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	serverAddr := server.Addr()
	if serverAddr == nil {
		t.Error("Addr returned nil")
	}
}

func TestServer_Serve(t *testing.T) {
	server := newTestServer(t)

	handler := newMockHandler()
	ctx, cancel := context.WithCancel(context.Background())

	// Start serving in goroutine
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	// Connect a client
	clientConn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	defer clientConn.Close()

	// Wait for handler to receive the connection
	select {
	case conn := <-handler.handleCh:
		if conn == nil {
			t.Error("handler received nil connection")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for handler")
	}

	// Cancel context to stop server
	cancel()

	// Wait for Serve to return
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}

func TestServer_Serve_ClosesSessionConn(t *testing.T) {
	server := newTestServer(t)

	handler := newMockHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Serve(ctx, handler)

	clientConn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	defer clientConn.Close()

	select {
	case <-handler.handleCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for handler")
	}

	// The server closes the connection once the handler returns.
	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	if n, err := clientConn.Read(buf); err == nil || n != 0 {
		t.Errorf("expected the session to be closed, got n=%d err=%v", n, err)
	}
}

func TestServer_Serve_Sequential(t *testing.T) {
	server := newTestServer(t)

	handler := newMockHandler()
	handler.release = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Serve(ctx, handler)

	// Connect multiple clients
	numClients := 3
	clients := make([]net.Conn, numClients)
	for i := 0; i < numClients; i++ {
		clientConn, err := net.Dial("tcp", server.Addr().String())
		if err != nil {
			t.Fatalf("client %d dial failed: %v", i, err)
		}
		defer clientConn.Close()
		clients[i] = clientConn
	}

	for i := 0; i < numClients; i++ {
		select {
		case conn := <-handler.handleCh:
			if conn == nil {
				t.Errorf("handler %d received nil connection", i)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for handler %d", i)
		}

		// The next session must not start while this one is running.
		select {
		case <-handler.handleCh:
			t.Fatalf("session %d overlapped with the previous one", i+1)
		case <-time.After(50 * time.Millisecond):
		}

		handler.release <- struct{}{}
	}

	// Verify handler received all connections
	conns := handler.getConns()
	if len(conns) != numClients {
		t.Errorf("handler received %d connections, want %d", len(conns), numClients)
	}
}

func TestServer_Serve_HandlerError(t *testing.T) {
	server := newTestServer(t)

	handler := newMockHandler()
	handler.err = &TestFailure{Test: StepAck}

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(context.Background(), handler)
	}()

	clientConn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	defer clientConn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTestFailed) {
			t.Errorf("expected ErrTestFailed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}

func TestServer_Serve_Close(t *testing.T) {
	server := newTestServer(t)

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(context.Background(), newMockHandler())
	}()

	// Give server time to start
	time.Sleep(time.Millisecond * 50)

	server.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil after Close, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}

func TestServer_Serve_ContextCanceled(t *testing.T) {
	server := newTestServer(t)

	handler := newMockHandler()
	ctx, cancel := context.WithCancel(context.Background())

	// Start serving in goroutine
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	// Give server time to start
	time.Sleep(time.Millisecond * 50)

	// Cancel context
	cancel()

	// Wait for Serve to return
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(ctx context.Context, conn net.Conn) error {
		called = true
		return nil
	})

	if err := h.Handle(context.Background(), nil); err != nil {
		t.Errorf("Handle failed: %v", err)
	}
	if !called {
		t.Error("HandlerFunc not called")
	}
}
