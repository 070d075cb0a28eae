package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rupesh-2/matrimonial-UI/internal/config"
	"github.com/rupesh-2/matrimonial-UI/internal/db"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

// ErrNotSignedIn is returned by commands that need a stored credential.
var ErrNotSignedIn = errors.New("not signed in: run `matrimony login` first")

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"login":         {"login -email EMAIL -password PASSWORD", runLogin},
	"register":      {"register -name NAME -email EMAIL -password PASSWORD [-gender G -age N -location L]", runRegister},
	"logout":        {"logout", runLogout},
	"whoami":        {"whoami", runWhoami},
	"feed":          {"feed [-page N -limit N -min-age N -max-age N -gender G -interests a,b]", runFeed},
	"like":          {"like USER_ID", runLike},
	"unlike":        {"unlike USER_ID", runUnlike},
	"likes":         {"likes [-page N]", runLikes},
	"matches":       {"matches [-page N]", runMatches},
	"unmatch":       {"unmatch USER_ID", runUnmatch},
	"conversations": {"conversations [-page N]", runConversations},
	"thread":        {"thread [-older N] USER_ID", runThread},
	"send":          {"send USER_ID MESSAGE...", runSend},
	"read":          {"read USER_ID", runRead},
	"profile":       {"profile [show|update|preferences|upload FILE|delete-photo URL]", runProfile},
	"ping":          {"ping", runPing},
	"listen":        {"listen", runListen},
	"fake-server":   {"fake-server [-port N -seed=true]", runFakeServer},
	"migrate":       {"migrate", runMigrate},
}

// Run bootstraps the matrimony command line client.
func Run(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger, os.Stdout, args)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(out)
		if len(args) == 0 {
			return errors.New("expected a command")
		}
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}

	e := &env{cfg: cfg, logger: logger, out: out}
	defer e.close()
	return cmd.run(ctx, e, args[1:])
}

func printUsage(out io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Fprintln(out, "usage: matrimony COMMAND [ARGS]")
	fmt.Fprintln(out)
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", commands[name].usage)
	}
}

// env carries what a command needs and builds the client lazily so commands
// such as fake-server never touch the credential backend.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	pool   *pgxpool.Pool
	client *Client
}

func (e *env) Client(ctx context.Context) (*Client, error) {
	if e.client != nil {
		return e.client, nil
	}

	var pool db.Pool
	if e.cfg.Credentials.Backend == config.CredentialBackendPostgres {
		p, err := db.Connect(ctx, e.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		e.pool, pool = p, p
	}

	c, err := NewClient(ctx, e.cfg, e.logger, pool)
	if err != nil {
		return nil, err
	}
	e.client = c
	return c, nil
}

// SignedIn restores the stored session and fails when there is none.
func (e *env) SignedIn(ctx context.Context) (*Client, error) {
	c, err := e.Client(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := c.Session.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrNotSignedIn
	}
	return c, nil
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

func (e *env) close() {
	if e.client != nil {
		e.client.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
