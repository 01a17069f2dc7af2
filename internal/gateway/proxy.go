package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codespacesh/workshop-hub/internal/auth"
	"github.com/codespacesh/workshop-hub/internal/orchestrator"
)

const defaultSidecarPort = "8888"

var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Upgrade",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWorkshopProxy resolves the caller's workshop container and proxies
// the request into it, per spec.md §4.2. Plain requests stream through an
// httputil.ReverseProxy; requests carrying "Upgrade: websocket" are bridged
// message by message between the browser's upgraded connection and a second
// WebSocket connection to the sidecar (see proxyWebSocket).
func (s *Server) handleWorkshopProxy(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	image, port := s.profiles.Resolve(id.Profile, s.workshopImage, s.workshopPort)
	binding, err := s.orchestrator.ResolveWithProfile(r.Context(), id.UserID, orchestrator.Profile{Image: image, Port: port})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrPodLimitReached):
			http.Error(w, "workshop capacity reached, try again later", http.StatusServiceUnavailable)
		case errors.Is(err, orchestrator.ErrNotReady):
			http.Error(w, "workshop did not become ready in time", http.StatusBadGateway)
		default:
			traceID, _ := TraceID(r.Context())
			slog.Error("gateway: resolving workshop failed", "user_id", id.UserID, "trace_id", traceID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	upstreamPath := strings.TrimPrefix(r.URL.Path, "/workshop")
	if upstreamPath == "" {
		upstreamPath = "/"
	}

	if isWebSocketUpgrade(r) {
		s.proxyWebSocket(w, r, binding.ClusterDNSName, upstreamPath)
		return
	}

	s.proxyHTTP(w, r, binding.ClusterDNSName, upstreamPath)
}

func (s *Server) port() string {
	if s.sidecarPort == "" {
		return defaultSidecarPort
	}
	return s.sidecarPort
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func (s *Server) proxyHTTP(w http.ResponseWriter, r *http.Request, dnsName, path string) {
	target := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = "http"
			req.URL.Host = net.JoinHostPort(dnsName, s.port())
			req.URL.Path = path
			req.Host = req.URL.Host
			for _, h := range hopByHopHeaders {
				req.Header.Del(h)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("gateway: proxying to workshop failed", "dns_name", dnsName, "err", err)
			http.Error(w, "workshop unreachable", http.StatusBadGateway)
		},
	}
	target.ServeHTTP(w, r)
}

// proxyWebSocket performs a second WebSocket handshake against the workshop
// sidecar and bridges it to the browser's upgraded connection, mirroring
// demo/broker/proxy.go's HandleWS.
func (s *Server) proxyWebSocket(w http.ResponseWriter, r *http.Request, dnsName, path string) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return (&net.Dialer{Timeout: 5 * time.Second}).DialContext(ctx, network, addr)
		},
	}

	upstreamURL := "ws://" + net.JoinHostPort(dnsName, s.port()) + path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	backendConn, _, err := dialer.Dial(upstreamURL, nil)
	if err != nil {
		slog.Error("gateway: dialing workshop websocket failed", "dns_name", dnsName, "err", err)
		http.Error(w, "workshop unreachable", http.StatusBadGateway)
		return
	}
	defer backendConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway: upgrading client connection failed", "err", err)
		return
	}
	defer clientConn.Close()

	done := make(chan struct{}, 2)

	go bridgeWS(clientConn, backendConn, done)
	go bridgeWS(backendConn, clientConn, done)

	<-done
}

func bridgeWS(dst, src *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		msgType, reader, err := src.NextReader()
		if err != nil {
			return
		}
		writer, err := dst.NextWriter(msgType)
		if err != nil {
			return
		}
		if _, err := io.Copy(writer, reader); err != nil {
			return
		}
		if err := writer.Close(); err != nil {
			return
		}
	}
}
