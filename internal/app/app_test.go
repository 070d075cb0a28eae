package app

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/rupesh-2/matrimonial-UI/internal/config"
	"github.com/rupesh-2/matrimonial-UI/internal/fakeapi"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

func runCommand(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), cfg, logging.Discard(), &out, args)
	return out.String(), err
}

func mustRun(t *testing.T, cfg config.Config, args ...string) string {
	t.Helper()
	out, err := runCommand(t, cfg, args...)
	if err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	out, err := runCommand(t, config.Config{}, "dance")
	if err == nil || !strings.Contains(err.Error(), "dance") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if !strings.Contains(out, "usage: matrimony") {
		t.Fatalf("expected usage, got %q", out)
	}

	if _, err := runCommand(t, config.Config{}); err == nil {
		t.Fatal("expected error without a command")
	}
}

func TestCommandsNeedSession(t *testing.T) {
	_, baseURL := startFakeServer(t)
	cfg := testConfig(t, baseURL)

	if _, err := runCommand(t, cfg, "whoami"); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected not signed in, got %v", err)
	}
}

func TestCommandLineSession(t *testing.T) {
	srv, baseURL := startFakeServer(t)
	cfg := testConfig(t, baseURL)
	ashaID, rohanID := userID(t, srv, "asha@example.com"), userID(t, srv, "rohan@example.com")
	rohan := strconv.FormatInt(rohanID, 10)

	out := mustRun(t, cfg, "login", "-email", "asha@example.com", "-password", fakeapi.DemoPassword)
	if !strings.Contains(out, "Signed in as Asha Verma") {
		t.Fatalf("unexpected login output %q", out)
	}

	if out := mustRun(t, cfg, "whoami"); !strings.Contains(out, "asha@example.com") {
		t.Fatalf("unexpected whoami output %q", out)
	}
	if out := mustRun(t, cfg, "feed"); !strings.Contains(out, "Rohan Mehta") {
		t.Fatalf("expected rohan in feed, got %q", out)
	}

	if _, err := srv.World().Like(rohanID, ashaID); err != nil {
		t.Fatalf("seed like: %v", err)
	}
	if out := mustRun(t, cfg, "like", rohan); !strings.Contains(out, "It's a match with Rohan Mehta!") {
		t.Fatalf("unexpected like output %q", out)
	}
	if out := mustRun(t, cfg, "matches"); !strings.Contains(out, "Rohan Mehta") {
		t.Fatalf("expected match listed, got %q", out)
	}

	if out := mustRun(t, cfg, "send", rohan, "Hello", "there"); !strings.Contains(out, "Sent message") {
		t.Fatalf("unexpected send output %q", out)
	}
	if out := mustRun(t, cfg, "thread", rohan); !strings.Contains(out, "me   Hello there") {
		t.Fatalf("unexpected thread output %q", out)
	}
	if out := mustRun(t, cfg, "conversations"); !strings.Contains(out, "Hello there") {
		t.Fatalf("unexpected conversations output %q", out)
	}

	if out := mustRun(t, cfg, "profile", "update", "-bio", "Weekend trekker"); !strings.Contains(out, "Profile updated") {
		t.Fatalf("unexpected profile output %q", out)
	}
	if out := mustRun(t, cfg, "profile"); !strings.Contains(out, "Weekend trekker") {
		t.Fatalf("expected updated bio, got %q", out)
	}

	if out := mustRun(t, cfg, "logout"); !strings.Contains(out, "Signed out") {
		t.Fatalf("unexpected logout output %q", out)
	}
	if _, err := runCommand(t, cfg, "whoami"); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected signed out, got %v", err)
	}
}

func TestPing(t *testing.T) {
	_, baseURL := startFakeServer(t)
	if out := mustRun(t, testConfig(t, baseURL), "ping"); !strings.Contains(out, "is online") {
		t.Fatalf("unexpected ping output %q", out)
	}

	cfg := testConfig(t, "http://127.0.0.1:1")
	if _, err := runCommand(t, cfg, "ping"); err == nil {
		t.Fatal("expected unreachable server error")
	}
}
