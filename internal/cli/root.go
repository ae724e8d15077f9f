// Package cli is the kachara command line: a terminal front end over the API
// client, the live channel and the messaging panel.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kacharaalert/internal/apiclient"
	"github.com/kacharaalert/internal/config"
	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
	"github.com/kacharaalert/internal/server"
	"github.com/kacharaalert/internal/startup"
	"github.com/kacharaalert/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app carries what every command needs once connected.
type app struct {
	configPath string
	apiURL     string
	email      string
	password   string

	cfg    *config.Config
	client *apiclient.Client
	user   *model.User
	store  storage.Store
	demo   *server.Server

	in *bufio.Reader
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kachara",
		Short: "KacharaAlert client: messages, invoices and ratings from the terminal",
		Long: `kachara talks to a KacharaAlert backend. Without an API URL it starts
an in-memory demo backend on a loopback port and signs in as a seeded resident.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetPrefix("kachara")
			a.cfg = config.Load(a.configPath)
			if a.apiURL != "" {
				a.cfg.APIBaseURL = strings.TrimSuffix(a.apiURL, "/")
			}
			logger.SetLevel(a.cfg.LogLevel)
			a.in = bufio.NewReader(cmd.InOrStdin())
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file path (default config/kachara.yaml)")
	flags.StringVar(&a.apiURL, "api-url", "", "backend base URL (empty starts the demo backend)")
	flags.StringVarP(&a.email, "email", "e", "", "account email (or KACHARA_EMAIL)")
	flags.StringVarP(&a.password, "password", "p", "", "account password (or KACHARA_PASSWORD; prompted when empty)")

	root.AddCommand(
		a.whoamiCmd(),
		a.contactsCmd(),
		a.historyCmd(),
		a.sendCmd(),
		a.editCmd(),
		a.deleteCmd(),
		a.chatCmd(),
		a.invoicesCmd(),
		a.payCmd(),
		a.invoiceAdminCmd(),
		a.ratingCmd(),
		a.rateCmd(),
		a.profileCmd(),
		a.usersCmd(),
		a.avatarCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute(ctx context.Context) {
	err := NewRootCommand().ExecuteContext(ctx)
	logger.Flush(time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the process-wide store once; later calls reuse it
// whatever kind they ask for.
func (a *app) openStore(ctx context.Context, kind string) (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := startup.OpenStore(ctx, kind, a.cfg.Redis.URL, 10*time.Second)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// connect resolves the backend (starting the demo one when no URL is set)
// and signs in.
func (a *app) connect(ctx context.Context) error {
	base := a.cfg.APIBaseURL
	demo := a.cfg.DemoMode()
	if demo {
		store, err := a.openStore(ctx, a.cfg.Demo.SessionStore)
		if err != nil {
			return fmt.Errorf("demo store: %w", err)
		}
		srv, err := server.New(ctx, a.cfg.Demo, a.cfg.Live, store)
		if err != nil {
			return fmt.Errorf("demo backend: %w", err)
		}
		a.demo = srv
		if base, err = srv.Start("127.0.0.1:0"); err != nil {
			return fmt.Errorf("demo backend: %w", err)
		}
		logger.Infof("demo mode: no API URL configured, using in-memory backend at %s", base)
	}

	client, err := apiclient.New(apiclient.Options{BaseURL: base, Timeout: a.cfg.RequestTimeout})
	if err != nil {
		return err
	}
	a.client = client

	email := firstNonEmpty(a.email, os.Getenv("KACHARA_EMAIL"))
	password := firstNonEmpty(a.password, os.Getenv("KACHARA_PASSWORD"))
	if demo && email == "" {
		email, password = repository.SeedResidentEmail, repository.DemoPassword
		logger.Infof("demo mode: signing in as %s", email)
	}
	if email == "" {
		return errors.New("no account: pass --email or set KACHARA_EMAIL")
	}
	if password == "" {
		if password, err = a.readPassword(); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}
	u, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	a.user = u
	return nil
}

func (a *app) readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if a.demo != nil {
		if err := a.demo.Shutdown(ctx); err != nil {
			logger.Errorf("demo backend shutdown: %v", err)
		}
		a.demo = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Errorf("store close: %v", err)
		}
		a.store = nil
	}
}

// connected wraps a command body that needs a signed-in client.
func (a *app) connected(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close(cmd.Context())
		if err := a.connect(cmd.Context()); err != nil {
			return err
		}
		return run(cmd, args)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
