package sidecar

import (
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// Pipe accepts connections on a TCP listener and bridges each one to a
// fresh connection to Upstream, tracking the most recent activity so the
// health endpoint can report idle time. A single atomic cell holds the
// last-activity timestamp — every byte copied in either direction updates
// it, and there is no lock because only one value is ever written, never
// read-modify-written.
type Pipe struct {
	Upstream Upstream

	lastActivity atomic.Int64 // unix seconds
}

// NewPipe creates a Pipe targeting the given upstream, with activity seeded
// to the current time so a freshly started sidecar isn't immediately
// considered idle.
func NewPipe(upstream Upstream) *Pipe {
	p := &Pipe{Upstream: upstream}
	p.touch()
	return p
}

func (p *Pipe) touch() {
	p.lastActivity.Store(time.Now().Unix())
}

// LastActivity returns the unix timestamp of the most recent byte copied
// through the pipe in either direction.
func (p *Pipe) LastActivity() int64 {
	return p.lastActivity.Load()
}

// Serve accepts connections on ln until it is closed, bridging each one to
// a new dial of Upstream. A dial failure closes just that connection; it
// never brings down the listener.
func (p *Pipe) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go p.handle(conn)
	}
}

func (p *Pipe) handle(conn net.Conn) {
	defer conn.Close()

	upstream, err := p.Upstream.Dial()
	if err != nil {
		slog.Error("sidecar: dialing upstream failed", "upstream", p.Upstream.String(), "err", err)
		return
	}
	defer upstream.Close()

	done := make(chan struct{}, 2)
	go func() {
		p.copy(upstream, conn)
		done <- struct{}{}
	}()
	go func() {
		p.copy(conn, upstream)
		done <- struct{}{}
	}()

	// Wait for the first direction to finish, then close both legs so the
	// other unblocks instead of waiting forever on a peer that neither sends
	// more data nor closes its own side.
	<-done
	conn.Close()
	upstream.Close()
	<-done
}

func (p *Pipe) copy(dst io.Writer, src io.Reader) {
	_, err := io.Copy(dst, &activityReader{r: src, pipe: p})
	if err != nil && err != io.EOF {
		slog.Debug("sidecar: pipe copy ended", "err", err)
	}
}

// activityReader touches the pipe's last-activity timestamp on every
// non-empty read, without adding any locking on the hot path.
type activityReader struct {
	r    io.Reader
	pipe *Pipe
}

func (a *activityReader) Read(b []byte) (int, error) {
	n, err := a.r.Read(b)
	if n > 0 {
		a.pipe.touch()
	}
	return n, err
}
