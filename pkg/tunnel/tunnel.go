// Package tunnel splices an inbound local connection to a peer-dialed data
// tunnel, forwarding bytes in both directions until either side closes.
// Grounded on the original gateway's upstream.rs::run_tcp_forward, which
// does the same double io.Copy over a raw TCP stream; here the far side is
// an abstract DataTunnel built by a PeerDialer instead of a bare
// net.TcpStream, since the zone forwards to other devices, not just local
// upstream ports.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// RelayBufferSize bounds each direction's read window, so a tunnel never
// buffers more than one read ahead of what it has already forwarded.
const RelayBufferSize = 32 * 1024

// TargetAddr names the upstream a tunnel should reach: a peer (device) and
// the port it serves.
type TargetAddr struct {
	PeerID string
	Port   int
}

// DataTunnel is a full-duplex byte stream to a device, built by a
// PeerDialer.
type DataTunnel interface {
	io.Reader
	io.Writer
	io.Closer
}

// PeerDialer builds a DataTunnel to a named peer's port, over the zone's
// device-to-device transport.
type PeerDialer interface {
	BuildDataTunnel(ctx context.Context, peerID string, port int) (DataTunnel, error)
}

type copyResult struct {
	n   int64
	err error
}

// Relay dials a data tunnel to target via peer and splices it to local
// (an already-accepted inbound connection), copying bytes in both
// directions until either side closes or ctx is cancelled. Returns the
// byte counts sent to, and received from, the peer.
func Relay(ctx context.Context, target TargetAddr, peer PeerDialer, local net.Conn) (sent, recv int64, err error) {
	tunnel, err := peer.BuildDataTunnel(ctx, target.PeerID, target.Port)
	if err != nil {
		return 0, 0, fmt.Errorf("tunnel: build data tunnel to %s:%d: %w", target.PeerID, target.Port, err)
	}
	defer tunnel.Close()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			local.Close()
			tunnel.Close()
		case <-watchDone:
		}
	}()

	sentCh := make(chan copyResult, 1)
	go func() {
		buf := make([]byte, RelayBufferSize)
		n, cerr := io.CopyBuffer(tunnel, local, buf)
		sentCh <- copyResult{n, cerr}
	}()

	recvBuf := make([]byte, RelayBufferSize)
	recvN, recvErr := io.CopyBuffer(local, tunnel, recvBuf)

	// One direction finishing (peer closed, or local closed) means the
	// other can't make further progress either; close both ends so the
	// still-running copy unblocks instead of hanging.
	local.Close()
	tunnel.Close()

	sentRes := <-sentCh

	if sentRes.err != nil && !isBenignCloseErr(sentRes.err) {
		return sentRes.n, recvN, fmt.Errorf("tunnel: copy to peer %s: %w", target.PeerID, sentRes.err)
	}
	if recvErr != nil && !isBenignCloseErr(recvErr) {
		return sentRes.n, recvN, fmt.Errorf("tunnel: copy from peer %s: %w", target.PeerID, recvErr)
	}
	return sentRes.n, recvN, nil
}

func isBenignCloseErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
