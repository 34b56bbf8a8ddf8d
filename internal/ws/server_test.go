package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func wsURLFromHTTP(serverURL string, path string) string {
	ws := strings.Replace(serverURL, "http", "ws", 1)
	if !strings.HasSuffix(ws, "/") && !strings.HasPrefix(path, "/") {
		return ws + "/" + path
	}
	return ws + path
}

func startTestServer(t *testing.T, token string) (*httptest.Server, string) {
	t.Helper()
	ts, _, url := startHub(t, token)
	return ts, url
}

func startHub(t *testing.T, token string) (*httptest.Server, *Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	s := NewServer(token, zerolog.Nop())
	mux.HandleFunc("/ws", s.HandleWS)
	ts := httptest.NewServer(mux)
	return ts, s, wsURLFromHTTP(ts.URL, "/ws")
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{Subprotocols: []string{"auth.bearer." + token}}
	h := http.Header{}
	h.Set("Origin", "http://localhost")
	c, _, err := d.Dial(url, h)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, s.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWS_RejectsWithoutSubprotocol(t *testing.T) {
	ts, url := startTestServer(t, "secrettoken")
	defer ts.Close()

	d := websocket.Dialer{}
	h := http.Header{}
	h.Set("Origin", "http://localhost")
	c, resp, err := d.Dial(url, h)
	if err == nil {
		c.Close()
		t.Fatalf("expected error, got successful connection")
	}
	if resp == nil {
		t.Fatalf("expected HTTP response with status, got nil")
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 Forbidden, got %d", resp.StatusCode)
	}
}

func TestWS_RejectsWithWrongToken(t *testing.T) {
	ts, url := startTestServer(t, "secrettoken")
	defer ts.Close()

	d := websocket.Dialer{Subprotocols: []string{"auth.bearer.wrong"}}
	h := http.Header{}
	h.Set("Origin", "http://localhost")
	c, resp, err := d.Dial(url, h)
	if err == nil {
		c.Close()
		t.Fatalf("expected error for wrong token, got successful connection")
	}
	if resp == nil {
		t.Fatalf("expected HTTP response with status, got nil")
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 Forbidden, got %d", resp.StatusCode)
	}
}

func TestWS_AcceptsWithValidSubprotocolAndEcho(t *testing.T) {
	const token = "secrettoken"
	ts, url := startTestServer(t, token)
	defer ts.Close()

	d := websocket.Dialer{Subprotocols: []string{"auth.bearer." + token}}
	h := http.Header{}
	h.Set("Origin", "http://localhost")
	c, resp, err := d.Dial(url, h)
	if err != nil {
		t.Fatalf("expected successful connection, got error: %v", err)
	}
	defer c.Close()
	if resp == nil {
		t.Fatalf("expected handshake response, got nil")
	}
	// Server should echo back the selected subprotocol
	if got := c.Subprotocol(); got != "auth.bearer."+token {
		t.Fatalf("expected subprotocol to be echoed back, got %q", got)
	}
}

func TestWS_Origin_NullAllowed(t *testing.T) {
	ts, url := startTestServer(t, "tok")
	defer ts.Close()
	d := websocket.Dialer{Subprotocols: []string{"auth.bearer.tok"}}
	h := http.Header{}
	h.Set("Origin", "null")
	c, _, err := d.Dial(url, h)
	if err != nil {
		t.Fatalf("expected connection with Origin=null, got error: %v", err)
	}
	_ = c.Close()
}

func TestWS_Origin_EvilDisallowed(t *testing.T) {
	ts, url := startTestServer(t, "tok")
	defer ts.Close()
	d := websocket.Dialer{Subprotocols: []string{"auth.bearer.tok"}}
	h := http.Header{}
	h.Set("Origin", "http://evil.com")
	c, resp, err := d.Dial(url, h)
	if err == nil {
		c.Close()
		t.Fatalf("expected origin check failure, got successful connection")
	}
	if resp == nil {
		t.Fatalf("expected HTTP response with status, got nil")
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 Forbidden for bad origin, got %d", resp.StatusCode)
	}
}

func TestWS_OriginCheck(t *testing.T) {
	cases := map[string]bool{
		"http://localhost:3000": true,
		"https://127.0.0.1":     true,
		"http://[::1]:8080":     true,
		"null":                  true,
		"ftp://localhost":       false,
		"http://example.org":    false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Origin", origin)
		if got := checkOrigin(r); got != want {
			t.Errorf("origin %q: got %v, want %v", origin, got, want)
		}
	}
}
