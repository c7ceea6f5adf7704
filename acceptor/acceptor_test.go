//go:build linux || darwin

package acceptor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcceptorForwardsBrowserConnToHost(t *testing.T) {
	dir := t.TempDir()
	harnessPath := filepath.Join(dir, "harness.sock")
	hostPath := filepath.Join(dir, "host.sock")

	browserListener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	addr := browserListener.Addr().String()

	a := New(Config{HarnessSocketPath: harnessPath, HostSocketPath: hostPath, QueueDepth: 4}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- a.Run(ctx) }()

	// Give the acceptor's harness socket a moment to bind, then hand
	// off the listening socket.
	time.Sleep(50 * time.Millisecond)
	if err := SendListener(harnessPath, browserListener); err != nil {
		t.Fatalf("SendListener: %v", err)
	}
	browserListener.Close() // the acceptor now owns the fd

	time.Sleep(50 * time.Millisecond)
	hostConn, err := DialHost(hostPath)
	if err != nil {
		t.Fatalf("DialHost: %v", err)
	}
	defer hostConn.Close()

	time.Sleep(50 * time.Millisecond)

	browserErrCh := make(chan error, 1)
	go func() {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			browserErrCh <- err
			return
		}
		defer c.Close()
		c.Write([]byte("hello"))
		browserErrCh <- nil
	}()

	recvd, remote, err := ReceiveForwardedConn(hostConn)
	if err != nil {
		t.Fatalf("ReceiveForwardedConn: %v", err)
	}
	defer recvd.Close()
	if remote == "" {
		t.Fatal("expected non-empty remote address")
	}

	buf := make([]byte, 5)
	recvd.SetReadDeadline(time.Now().Add(time.Second))
	n, err := recvd.Read(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("expected to read forwarded browser bytes, got %q err=%v", buf[:n], err)
	}

	if err := <-browserErrCh; err != nil {
		t.Fatalf("browser dial: %v", err)
	}

	cancel()
	<-runErrCh
	os.Remove(harnessPath)
	os.Remove(hostPath)
}
