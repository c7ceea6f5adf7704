package integration

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dodeca-dev/dodeca/host"
)

// dialAndSend opens a TCP connection to addr, writes raw, and returns
// the parsed HTTP response. It fails the test if the connection is
// refused or reset rather than accepted, matching scenario 1's
// explicit "connection is accepted" expectation.
func dialAndSend(t *testing.T, addr, raw string) *http.Response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v (connection should be accepted even mid-boot)", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

// TestColdBootMissingCellReturns500 reproduces spec.md §8 scenario 1:
// a boot sequence that cannot complete (its required cell never
// becomes ready) still accepts the TCP connection and answers with a
// 500 status line, rather than refusing or resetting it.
func TestColdBootMissingCellReturns500(t *testing.T) {
	boot := host.NewBootStateManager()
	gate := host.NewBootGate(boot, log.Default())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go gate.Handle(ctx, conn, func(net.Conn, uint64) {
				t.Error("onReady must not be invoked once boot is fatal")
			})
		}
	}()

	// The required HTTP cell binary is missing from the configured cell
	// path: the supervisor's spawn-retry budget exhausts and the boot
	// sequence marks the state machine permanently Fatal.
	boot.MarkFatal(host.FatalMissingCell)

	resp := dialAndSend(t, ln.Addr().String(), "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

// TestBootGatedRequestSucceedsOnceReady reproduces spec.md §8 scenario
// 2: a request arriving while the boot state machine is still Booting
// is held open rather than answered, and is served 200 only once the
// state reaches Ready.
func TestBootGatedRequestSucceedsOnceReady(t *testing.T) {
	boot := host.NewBootStateManager()
	gate := host.NewBootGate(boot, log.Default())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	const body = "<!DOCTYPE html><html><body>dodeca</body></html>"
	firstByteWritten := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go gate.Handle(ctx, conn, func(conn net.Conn, generation uint64) {
				select {
				case firstByteWritten <- struct{}{}:
				default:
				}
				resp := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: " +
					strconv.Itoa(len(body)) + "\r\nConnection: close\r\n\r\n" + body
				conn.Write([]byte(resp))
				conn.Close()
			})
		}
	}()

	requestDone := make(chan *http.Response, 1)
	go func() {
		requestDone <- dialAndSend(t, ln.Addr().String(), "GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	}()

	// The handler must not have written a byte yet: boot is still in
	// its initial Booting(LoadingCells) phase.
	select {
	case <-firstByteWritten:
		t.Fatal("handler ran before boot state reached Ready")
	case <-time.After(150 * time.Millisecond):
	}

	boot.AdvancePhase(host.PhaseWaitingCellsReady)
	if !boot.MarkReady(1) {
		t.Fatal("MarkReady from Booting must succeed")
	}

	select {
	case resp := <-requestDone:
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		got, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if !strings.Contains(string(got), "<!DOCTYPE html>") {
			t.Fatalf("body missing doctype: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request never completed after boot reached Ready")
	}
}
