package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/checkcalendar-api/internal/client"
	"github.com/checkcalendar-api/internal/domain"
)

func main() {
	var (
		apiURL    = flag.String("api", envOr("CHECKCAL_API", "http://localhost:3001"), "API base URL")
		session   = flag.String("session", defaultSessionPath(), "file holding the signed-in session")
		allowDemo = flag.Bool("allow-demo", false, "offer demo mode when the server cannot be reached")
		logout    = flag.Bool("logout", false, "forget the stored session and exit")
		timeout   = flag.Duration("timeout", client.DefaultTimeout, "per-request timeout")
	)
	flag.Parse()

	store := client.NewFileStore(*session)
	if *logout {
		if err := store.Clear(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("Signed out.")
		return
	}

	api := client.NewAPI(*apiURL, *timeout)
	flow := client.NewFlow(api, store, client.FlowOptions{AllowDemo: *allowDemo})
	if _, err := flow.Restore(); err != nil {
		fmt.Fprintf(os.Stderr, "ignoring stored session: %v\n", err)
	}

	if err := run(context.Background(), flow, api, os.Stdin, os.Stdout); err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flow *client.Flow, api *client.API, in io.Reader, out io.Writer) error {
	lines := bufio.NewScanner(in)
	prompt := func(label string) (string, error) {
		fmt.Fprint(out, label)
		if !lines.Scan() {
			if err := lines.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(lines.Text()), nil
	}

	for {
		switch flow.State() {
		case client.StateIdentify:
			email, err := prompt("Email: ")
			if err != nil {
				return err
			}
			if err := flow.SubmitEmail(ctx, email); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				if flow.CanEnterDemo() {
					if ans, _ := prompt("Server unreachable. Continue in demo mode? [y/N] "); strings.EqualFold(ans, "y") {
						_ = flow.EnterDemo()
					}
				}
				continue
			}
			fmt.Fprintf(out, "A code was sent to %s.\n", flow.Email())

		case client.StateAwaitCode:
			code, err := prompt("Code (or 'change', 'resend'): ")
			if err != nil {
				return err
			}
			switch strings.ToLower(code) {
			case "change":
				_ = flow.ChangeEmail()
			case "resend":
				if err := flow.SubmitEmail(ctx, flow.Email()); errors.Is(err, client.ErrCooldown) {
					fmt.Fprintf(out, "You can resend in %ds.\n", (flow.CooldownRemaining()+time.Second-1)/time.Second)
				} else if err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
				} else {
					fmt.Fprintln(out, "A new code is on its way.")
				}
			default:
				err := flow.SubmitCode(ctx, code)
				if errors.Is(err, client.ErrSessionNotSaved) {
					fmt.Fprintf(out, "Warning: %v; you will need to sign in again next time.\n", err)
				} else if err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
				}
			}

		case client.StateAuthenticated:
			items, err := api.ListCalendars(ctx, flow.Token())
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
				fmt.Fprintln(out, "Your session has expired. Please sign in again.")
				if err := flow.Logout(); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Signed in as %s.\n", flow.Email())
			printActivities(out, items)
			return nil

		case client.StateDemo:
			fmt.Fprintf(out, "Demo mode as %s. Nothing is saved to the server.\n", flow.Email())
			return nil
		}
	}
}

func printActivities(out io.Writer, items []domain.Activity) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No activities yet.")
		return
	}
	for _, a := range items {
		fmt.Fprintf(out, "  %-30s %4d checks\n", a.Name, len(a.Checks))
	}
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".checkcal-session.json"
	}
	return filepath.Join(dir, "checkcal", "session.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
