package redis

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/pulse/internal/logger"
)

func validOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		DialTimeout:    50 * time.Millisecond,
		ConnectTimeout: 200 * time.Millisecond,
		RetryInterval:  20 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	err := ConnectOptions{WarnThreshold: -1}.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, field := range []string{"Addr", "ConnectTimeout", "RetryInterval", "MaxWait", "PingTimeout", "WarnThreshold"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}

	if err := validOptions("localhost:6379").Validate(); err != nil {
		t.Errorf("valid options rejected: %v", err)
	}
}

func TestNewGivesUpAfterConnectTimeout(t *testing.T) {
	// a port that was just released refuses connections
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	start := time.Now()
	client, err := New(context.Background(), validOptions(addr), logger.NewNop())
	if err == nil {
		t.Fatal("expected connection failure")
	}
	if client != nil {
		t.Error("client should be nil on failure")
	}
	if !strings.Contains(err.Error(), addr) {
		t.Errorf("error %q should name the address", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("gave up after %v, want about the connect timeout", elapsed)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	if _, err := New(context.Background(), ConnectOptions{}, logger.NewNop()); err == nil {
		t.Fatal("expected validation error")
	}
}
