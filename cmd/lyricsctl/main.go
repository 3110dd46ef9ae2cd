// Command lyricsctl is a terminal client for the lyricsgate API.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/welldanyogia/lyricsgate/internal/auth"
	"github.com/welldanyogia/lyricsgate/internal/client"
	"github.com/welldanyogia/lyricsgate/internal/client/session"
	"github.com/welldanyogia/lyricsgate/internal/generator"
)

const usage = `usage: lyricsctl [-server URL] [-state FILE] <command> [args]

commands:
  register          create an account
  login             log in and remember the session
  logout            forget the session
  me                show the profile and usage
  generate          generate lyrics (-artist, -description, -length)
  forgot-password   request a reset link
  verify-reset      check a reset token
  reset-password    set a new password with a reset token
  users             list accounts (admin)
  reset-usage ID    zero an account's usage (admin)
  delete-user ID    delete an account (admin)
  stats             endpoint call counters (admin)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("lyricsctl", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	server := fs.String("server", envOr("LYRICSGATE_URL", "http://localhost:8080"), "server base URL")
	statePath := fs.String("state", "", "client state file (default: user config dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	path := *statePath
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			return err
		}
	}
	store, err := session.OpenSQLiteStore(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	app := &cli{
		api:   client.New(*server, store),
		in:    bufio.NewReader(stdin),
		out:   stdout,
		stdin: stdin,
	}
	return app.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

type cli struct {
	api   *client.Client
	in    *bufio.Reader
	out   io.Writer
	stdin io.Reader
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		email, err := c.prompt("Email")
		if err != nil {
			return err
		}
		name, err := c.prompt("Display name")
		if err != nil {
			return err
		}
		password, err := c.password("Password")
		if err != nil {
			return err
		}
		resp, err := c.api.Register(ctx, auth.RegisterRequest{Email: email, Password: password, DisplayName: name})
		if err != nil {
			return err
		}
		return c.print(resp.User)

	case "login":
		email, err := c.prompt("Email")
		if err != nil {
			return err
		}
		password, err := c.password("Password")
		if err != nil {
			return err
		}
		resp, err := c.api.Login(ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Logged in as %s (%d calls used)\n", resp.User.Email, resp.UsageCount)
		return nil

	case "logout":
		return c.api.Logout(ctx)

	case "me":
		profile, err := c.api.Me(ctx)
		if err != nil {
			return err
		}
		return c.print(profile)

	case "generate":
		return c.generate(ctx, args)

	case "forgot-password":
		email, err := c.prompt("Email")
		if err != nil {
			return err
		}
		msg, err := c.api.ForgotPassword(ctx, email)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, msg)
		return nil

	case "verify-reset":
		email, err := c.prompt("Email")
		if err != nil {
			return err
		}
		token, err := c.prompt("Reset token")
		if err != nil {
			return err
		}
		valid, err := c.api.VerifyResetToken(ctx, token, email)
		if err != nil {
			return err
		}
		return c.print(map[string]bool{"valid": valid})

	case "reset-password":
		email, err := c.prompt("Email")
		if err != nil {
			return err
		}
		token, err := c.prompt("Reset token")
		if err != nil {
			return err
		}
		password, err := c.password("New password")
		if err != nil {
			return err
		}
		msg, err := c.api.ResetPassword(ctx, token, email, password)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, msg)
		return nil

	case "users":
		users, err := c.api.ListUsers(ctx)
		if err != nil {
			return err
		}
		return c.print(users)

	case "reset-usage", "delete-user":
		if len(args) != 1 {
			return fmt.Errorf("%s needs an account id", cmd)
		}
		if cmd == "reset-usage" {
			return c.api.ResetUsage(ctx, args[0])
		}
		return c.api.DeleteUser(ctx, args[0])

	case "stats":
		stats, err := c.api.EndpointStats(ctx)
		if err != nil {
			return err
		}
		return c.print(stats)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) generate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	artist := fs.String("artist", "", "artist to imitate")
	description := fs.String("description", "", "what the song is about")
	length := fs.Int("length", generator.DefaultMaxLength, "maximum length")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := generator.Request{Artist: *artist, Description: *description, MaxLength: length}
	resp, err := c.api.Generate(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, resp.Lyrics)
	fmt.Fprintf(c.out, "\n(%d calls used)\n", resp.UsageCount)
	if resp.LimitMessage != "" {
		fmt.Fprintln(c.out, resp.LimitMessage)
	}
	return nil
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprintf(c.out, "%s: ", label)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// password reads without echo when stdin is a terminal
func (c *cli) password(label string) (string, error) {
	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(c.out, "%s: ", label)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	return c.prompt(label)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
