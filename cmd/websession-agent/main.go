package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/moneybook/websession/config"
	"github.com/moneybook/websession/internal/bootstrap"
	domainauth "github.com/moneybook/websession/internal/domain/auth"
	apperrors "github.com/moneybook/websession/internal/errors"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	Stack  *bootstrap.ClientStack
}

func main() {
	logger := bootstrap.InitLogger(slog.LevelWarn)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger = bootstrap.InitLogger(cfg.Observability.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	runErr := execute(ctx, cmd, &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: os.Stdout}, os.Args[2:])
	stop()
	if runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		if apperrors.IsCode(runErr, apperrors.ErrCodeValidation) {
			os.Exit(2) //nolint:forbidigo // usage errors exit like unknown commands
		}
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

// execute wires the client stack, optionally backed by Redis, and runs cmd.
func execute(ctx context.Context, cmd command, cc *commandContext, args []string) (err error) {
	var rdb redis.UniversalClient
	if cc.Config.Client.PersistJar {
		rdb, err = bootstrap.ConnectRedis(ctx, bootstrap.RedisOptions{Config: cc.Config.Redis, Logger: cc.Logger})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if cerr := rdb.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close redis: %w", cerr))
			}
		}()
	}

	stack, err := bootstrap.NewClientStack(ctx, bootstrap.ClientStackOptions{
		Config: &cc.Config,
		Redis:  rdb,
		Logger: cc.Logger,
	})
	if err != nil {
		return err
	}
	defer stack.Close()

	cc.Stack = stack
	return cmd.run(cc, args)
}

func commands() map[string]command {
	return map[string]command{
		"set-cookies": {
			name:        "set-cookies",
			description: "Seed the cookie jar with identity cookies issued at sign-in",
			run:         runSetCookies,
		},
		"whoami": {
			name:        "whoami",
			description: "Print the identity of the current session",
			run:         runWhoAmI,
		},
		"get": {
			name:        "get",
			description: "Issue a credentialed GET against the provider API and print the JSON body",
			run:         runGet,
		},
		"visit": {
			name:        "visit",
			description: "Navigate to an application route and report where the session lands",
			run:         runVisit,
		},
		"hydrate": {
			name:        "hydrate",
			description: "Load the server-validated session from CLIENT_WEB_BASE_URL into the store",
			run:         runHydrate,
		},
		"update-profile": {
			name:        "update-profile",
			description: "Edit profile fields upstream and merge them into the stored identity",
			run:         runUpdateProfile,
		},
		"logout": {
			name:        "logout",
			description: "End the session upstream and clear the cookie jar",
			run:         runLogout,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: websession-agent <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-15s %s\n", name, commands()[name].description); err != nil {
			return err
		}
	}
	return nil
}

type setCookiesOptions struct {
	Access  string
	Refresh string
}

func runSetCookies(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("set-cookies", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts setCookiesOptions
	fs.StringVar(&opts.Access, "access", "", "Access token cookie value")
	fs.StringVar(&opts.Refresh, "refresh", "", "Refresh token cookie value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.Access == "" && opts.Refresh == "" {
		return apperrors.Validation("at least one of --access or --refresh is required")
	}

	names := ctx.Config.Cookies.Names()
	var cookies []*http.Cookie
	if opts.Access != "" {
		cookies = append(cookies, &http.Cookie{Name: names.Access, Value: opts.Access})
	}
	if opts.Refresh != "" {
		cookies = append(cookies, &http.Cookie{Name: names.Refresh, Value: opts.Refresh})
	}
	ctx.Stack.Jar.Set(cookies)
	return writef(ctx.Out, "stored %d cookie(s) for profile %s\n", len(cookies), ctx.Config.Client.Profile)
}

func runWhoAmI(ctx *commandContext, _ []string) error {
	if err := ctx.Stack.Store.Refetch(ctx.Ctx); err != nil {
		return fmt.Errorf("whoami: %w", err)
	}
	return writeJSON(ctx.Out, ctx.Stack.Store.Identity())
}

func runGet(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return apperrors.Validation("usage: websession-agent get <path>")
	}

	var out any
	if err := ctx.Stack.API.Get(ctx.Ctx, fs.Arg(0), &out); err != nil {
		return err
	}
	return writeJSON(ctx.Out, out)
}

func runVisit(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("visit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return apperrors.Validation("usage: websession-agent visit <route>")
	}

	if err := ctx.Stack.Visit(ctx.Ctx, fs.Arg(0)); err != nil {
		return err
	}
	st := ctx.Stack.Store.State()
	return writeJSON(ctx.Out, map[string]any{
		"route":    ctx.Stack.Navigator.Path(),
		"status":   st.Status.String(),
		"identity": st.Identity,
		"error":    st.Err,
		"attempts": st.Attempts,
	})
}

func runHydrate(ctx *commandContext, _ []string) error {
	hydrated, err := ctx.Stack.Hydrate(ctx.Ctx)
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	st := ctx.Stack.Store.State()
	return writeJSON(ctx.Out, map[string]any{
		"hydrated": hydrated,
		"status":   st.Status.String(),
		"identity": st.Identity,
	})
}

func runUpdateProfile(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("update-profile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var partial domainauth.Identity
	fs.StringVar(&partial.FirstName, "first-name", "", "New first name")
	fs.StringVar(&partial.LastName, "last-name", "", "New last name")
	fs.StringVar(&partial.Email, "email", "", "New email address")
	fs.StringVar(&partial.ProfilePicture, "picture", "", "New profile picture URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if partial == (domainauth.Identity{}) {
		return apperrors.Validation("at least one profile field is required")
	}

	updated, err := ctx.Stack.UpdateProfile(ctx.Ctx, partial)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return writeJSON(ctx.Out, updated)
}

func runLogout(ctx *commandContext, _ []string) error {
	if err := ctx.Stack.Logout(ctx.Ctx); err != nil {
		return err
	}
	return writef(ctx.Out, "signed out\n")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
