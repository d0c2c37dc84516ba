package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
)

func listenNotify(t *testing.T) (net.PacketConn, string) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "notify.sock")
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, sockPath
}

func readPayload(t *testing.T, conn net.PacketConn) string {
	t.Helper()
	buf := make([]byte, 512)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}
	return string(buf[:n])
}

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd("READY=1")
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd("READY=1")
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_Ready(t *testing.T) {
	conn, sockPath := listenNotify(t)
	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd("READY=1"); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}
	if got := readPayload(t, conn); got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

func TestNotifySystemd_MultipleStates(t *testing.T) {
	conn, sockPath := listenNotify(t)
	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd("READY=1", "STATUS=triaging with rules provider, 3 kb entries"); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}
	want := "READY=1\nSTATUS=triaging with rules provider, 3 kb entries"
	if got := readPayload(t, conn); got != want {
		t.Errorf("payload = %q, want %q", got, want)
	}
}

func TestNotifySystemd_NoStates(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	if err := notifySystemd(); err != nil {
		t.Errorf("notifySystemd() with no states = %v, want nil", err)
	}
}
