package tunnel

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"
)

// pipeTunnel adapts a net.Conn (one end of a net.Pipe) to DataTunnel.
type pipeTunnel struct {
	net.Conn
}

type stubDialer struct {
	tunnel DataTunnel
	dialed TargetAddr
}

func (d *stubDialer) BuildDataTunnel(ctx context.Context, peerID string, port int) (DataTunnel, error) {
	d.dialed = TargetAddr{PeerID: peerID, Port: port}
	return d.tunnel, nil
}

func TestRelayForwardsBothDirections(t *testing.T) {
	localApp, localTunnelSide := net.Pipe()
	peerApp, peerTunnelSide := net.Pipe()

	dialer := &stubDialer{tunnel: pipeTunnel{peerTunnelSide}}

	done := make(chan struct{})
	var sent, recv int64
	var relayErr error
	go func() {
		sent, recv, relayErr = Relay(context.Background(), TargetAddr{PeerID: "dev-1", Port: 8080}, dialer, localTunnelSide)
		close(done)
	}()

	// Local app writes, peer app should read it.
	go func() {
		localApp.Write([]byte("ping"))
	}()
	buf := make([]byte, 4)
	if _, err := io.ReadFull(peerApp, buf); err != nil {
		t.Fatalf("peer did not receive forwarded bytes: %v", err)
	}
	if !bytes.Equal(buf, []byte("ping")) {
		t.Fatalf("expected 'ping', got %q", buf)
	}

	// Peer app writes, local app should read it.
	go func() {
		peerApp.Write([]byte("pong!"))
	}()
	buf2 := make([]byte, 5)
	if _, err := io.ReadFull(localApp, buf2); err != nil {
		t.Fatalf("local did not receive forwarded bytes: %v", err)
	}
	if !bytes.Equal(buf2, []byte("pong!")) {
		t.Fatalf("expected 'pong!', got %q", buf2)
	}

	localApp.Close()
	peerApp.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Relay did not return after both ends closed")
	}

	if relayErr != nil {
		t.Fatalf("Relay returned error: %v", relayErr)
	}
	if dialer.dialed.PeerID != "dev-1" || dialer.dialed.Port != 8080 {
		t.Fatalf("unexpected dial target: %+v", dialer.dialed)
	}
	_ = sent
	_ = recv
}

func TestRelayReturnsErrorWhenDialFails(t *testing.T) {
	local, _ := net.Pipe()
	defer local.Close()

	dialErr := &erroringDialer{}
	_, _, err := Relay(context.Background(), TargetAddr{PeerID: "dev-1", Port: 80}, dialErr, local)
	if err == nil {
		t.Fatalf("expected an error when the peer dialer fails")
	}
}

type erroringDialer struct{}

func (erroringDialer) BuildDataTunnel(ctx context.Context, peerID string, port int) (DataTunnel, error) {
	return nil, io.ErrUnexpectedEOF
}
