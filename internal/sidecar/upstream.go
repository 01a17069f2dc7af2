// Package sidecar implements the per-pod companion process: a raw byte
// pipe between the pod's network namespace and the workshop workload, plus
// a health endpoint the reaper polls for idleness.
package sidecar

import (
	"fmt"
	"net"
)

// Upstream is the workshop process the sidecar proxies to: exactly one of
// a TCP address or a Unix domain socket path (spec.md §6's "exactly one of
// TARGET_TCP or TARGET_UDS").
type Upstream struct {
	tcpAddr string
	udsPath string
}

// NewTCPUpstream targets a TCP address.
func NewTCPUpstream(addr string) Upstream {
	return Upstream{tcpAddr: addr}
}

// NewUDSUpstream targets a Unix domain socket path.
func NewUDSUpstream(path string) Upstream {
	return Upstream{udsPath: path}
}

// Dial connects to the upstream, picking TCP or Unix based on which field
// is set.
func (u Upstream) Dial() (net.Conn, error) {
	if u.udsPath != "" {
		conn, err := net.Dial("unix", u.udsPath)
		if err != nil {
			return nil, fmt.Errorf("dialing unix socket %s: %w", u.udsPath, err)
		}
		return conn, nil
	}
	conn, err := net.Dial("tcp", u.tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing tcp %s: %w", u.tcpAddr, err)
	}
	return conn, nil
}

// String describes the upstream target for logging.
func (u Upstream) String() string {
	if u.udsPath != "" {
		return "unix:" + u.udsPath
	}
	return "tcp:" + u.tcpAddr
}
