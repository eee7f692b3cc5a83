// ABOUTME: Entry point for the greenlight approval gateway CLI
// ABOUTME: Wires setup, serve, tunnel, request, and rotation commands

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/greenlight/internal/config"
	"github.com/2389/greenlight/internal/credentials"
	"github.com/2389/greenlight/internal/gateway"
	"github.com/2389/greenlight/internal/ledger"
	"github.com/2389/greenlight/internal/session"
	"github.com/2389/greenlight/internal/tunnel"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                            _ _       _     _
  __ _ _ __ ___  ___ _ __  | (_) __ _| |__ | |_
 / _' | '__/ _ \/ _ \ '_ \ | | |/ _' | '_ \| __|
| (_| | | |  __/  __/ | | || | | (_| | | | | |_
 \__, |_|  \___|\___|_| |_||_|_|\__, |_| |_|\__|
 |___/                          |___/
`

const defaultPort = 8123

// errSilent marks failures whose output was already printed (as JSON) and
// only need a non-zero exit.
var errSilent = errors.New("silent failure")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "setup":
		err = runSetup(args)
	case "serve":
		err = runServe(ctx, args)
	case "enable":
		err = runEnable(ctx, args)
	case "request":
		err = runRequest(args)
	case "wait":
		err = runWait(ctx, args)
	case "rotate-key":
		err = runRotateKey()
	case "rotate-password":
		err = runRotatePassword()
	case "set-public-url":
		err = runSetPublicURL(args)
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, errSilent) {
		os.Exit(1)
	}
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: greenlight <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  setup                    Initialize credentials and the request ledger")
	fmt.Println("    --port N                 Listen port (default 8123)")
	fmt.Println("    --password PW            Console password (prompts without it)")
	fmt.Println("    --password-stdin         Read the password from stdin")
	fmt.Println("  serve                    Start the approval gateway")
	fmt.Println("    --bind HOST              Bind host (default from config)")
	fmt.Println("    --port N                 Override and persist the listen port")
	fmt.Println("  enable                   Start the gateway plus an HTTPS tunnel")
	fmt.Println("  request                  Enqueue an approval request")
	fmt.Println("    --title TEXT             Short request title (required)")
	fmt.Println("    --prompt TEXT            Full prompt to approve (required)")
	fmt.Println("  wait <id>                Block until a request is decided")
	fmt.Println("    --timeout SECONDS        Give up after this long (default: never)")
	fmt.Println("  rotate-key               Rotate the agent access key")
	fmt.Println("  rotate-password          Rotate the console password")
	fmt.Println("  set-public-url <url>     Record the externally reachable URL")
	fmt.Println("  health                   Check the local gateway")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  GREENLIGHT_DIR           Data directory for the JSON documents")
	fmt.Println("  GREENLIGHT_CONFIG        Options file path (YAML)")
	fmt.Println()
	color.New(color.FgHiBlack).Printf("version: %s\n", version)
}

// loadOptions reads the optional YAML options file and installs the root
// logger built from it.
func loadOptions() (*config.Config, error) {
	cfg, err := config.Load(config.FilePath())
	if err != nil {
		return nil, err
	}
	// Components pick up their loggers from the default.
	slog.SetDefault(setupLogger(cfg.Logging))
	return cfg, nil
}

func runSetup(args []string) error {
	port := defaultPort
	var password string
	var passwordStdin bool

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--port":
			value, rest, err := takeValue(args, i, "--port")
			if err != nil {
				return err
			}
			i = rest
			port, err = strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid --port value %q", value)
			}
		case args[i] == "--password":
			value, rest, err := takeValue(args, i, "--password")
			if err != nil {
				return err
			}
			i = rest
			password = value
		case args[i] == "--password-stdin":
			passwordStdin = true
		default:
			return fmt.Errorf("unknown argument: %s", args[i])
		}
	}

	if _, err := loadOptions(); err != nil {
		return err
	}

	password, err := resolvePassword(password, passwordStdin)
	if err != nil {
		return err
	}

	creds := credentials.NewStore(config.CredentialsPath())
	record, accessKey, err := creds.Initialize(port, password)
	switch {
	case errors.Is(err, credentials.ErrAlreadyConfigured):
		fmt.Println("Already configured.")
	case err != nil:
		return err
	default:
		color.Green("Console configured.")
		fmt.Printf("Access key (store securely): %s\n", accessKey)
	}

	if err := ledger.New(config.LedgerPath()).Ensure(); err != nil {
		return err
	}

	fmt.Printf("Config path: %s\n", creds.Path())
	fmt.Printf("Local URL: http://127.0.0.1:%d\n", record.Port)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	bind, port, err := parseServeFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadOptions()
	if err != nil {
		return err
	}
	if bind == "" {
		bind = cfg.Server.Bind
	}

	creds, ldgr, record, err := openConfigured(port)
	if err != nil {
		return err
	}

	printServeInfo(record)

	gw := gateway.New(creds, session.NewManager(cfg.Session.TTL), ldgr, slog.Default())
	return gw.Run(ctx, net.JoinHostPort(bind, strconv.Itoa(record.Port)))
}

func runEnable(ctx context.Context, args []string) error {
	bind, port, err := parseServeFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadOptions()
	if err != nil {
		return err
	}
	if bind == "" {
		bind = cfg.Server.Bind
	}

	// First run: fall through to the interactive setup flow.
	creds := credentials.NewStore(config.CredentialsPath())
	if _, err := creds.Load(); errors.Is(err, credentials.ErrNotConfigured) {
		setupPort := port
		if setupPort == 0 {
			setupPort = defaultPort
		}
		password, err := resolvePassword("", false)
		if err != nil {
			return err
		}
		_, accessKey, err := creds.Initialize(setupPort, password)
		if err != nil {
			return err
		}
		color.Green("Console configured.")
		fmt.Printf("Access key (store securely): %s\n", accessKey)
	} else if err != nil {
		return err
	}

	creds, ldgr, record, err := openConfigured(port)
	if err != nil {
		return err
	}

	printServeInfo(record)

	gw := gateway.New(creds, session.NewManager(cfg.Session.TTL), ldgr, slog.Default())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gw.Run(ctx, net.JoinHostPort(bind, strconv.Itoa(record.Port)))
	}()

	if err := probeHealth(ctx, record.Port); err != nil {
		return fmt.Errorf("local gateway is not responding: %w", err)
	}

	tn, err := tunnel.Start(ctx, cfg.Tunnel.Binary, record.Port, slog.Default())
	if err != nil {
		return err
	}

	publicURL, err := tn.PublicURL(ctx, 30*time.Second)
	if err != nil {
		fmt.Println("Public URL not detected. Check tunnel output.")
	} else {
		if _, err := creds.SetPublicURL(publicURL); err != nil {
			return err
		}
		color.Green("Public URL: %s", publicURL)
	}

	fmt.Println("Approval gateway running. Press Ctrl+C to stop.")

	tunnelDone := make(chan error, 1)
	go func() { tunnelDone <- tn.Wait() }()

	select {
	case <-ctx.Done():
		<-tunnelDone
		return <-serveErr
	case err := <-tunnelDone:
		if ctx.Err() != nil {
			return <-serveErr
		}
		if err != nil {
			return fmt.Errorf("tunnel exited: %w", err)
		}
		return errors.New("tunnel exited unexpectedly")
	case err := <-serveErr:
		return err
	}
}

func runRequest(args []string) error {
	var title, prompt string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--title":
			value, rest, err := takeValue(args, i, "--title")
			if err != nil {
				return err
			}
			i = rest
			title = value
		case "--prompt":
			value, rest, err := takeValue(args, i, "--prompt")
			if err != nil {
				return err
			}
			i = rest
			prompt = value
		default:
			return fmt.Errorf("unknown argument: %s", args[i])
		}
	}
	if title == "" || prompt == "" {
		return errors.New("--title and --prompt are required")
	}

	if _, err := loadOptions(); err != nil {
		return err
	}
	_, ldgr, record, err := openConfigured(0)
	if err != nil {
		return err
	}

	request, err := ldgr.Create(title, prompt)
	if err != nil {
		return err
	}

	out := map[string]any{
		"request":  request,
		"localUrl": fmt.Sprintf("http://127.0.0.1:%d", record.Port),
	}
	if record.PublicURL != nil {
		out["publicUrl"] = *record.PublicURL
	}
	return printJSON(out)
}

func runWait(ctx context.Context, args []string) error {
	var id string
	var timeoutSeconds int
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--timeout":
			value, rest, err := takeValue(args, i, "--timeout")
			if err != nil {
				return err
			}
			i = rest
			timeoutSeconds, err = strconv.Atoi(value)
			if err != nil || timeoutSeconds < 0 {
				return fmt.Errorf("invalid --timeout value %q", value)
			}
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown argument: %s", args[i])
		case id == "":
			id = args[i]
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}
	if id == "" {
		return errors.New("request id is required")
	}

	if _, err := loadOptions(); err != nil {
		return err
	}
	_, ldgr, _, err := openConfigured(0)
	if err != nil {
		return err
	}

	request, err := ldgr.AwaitDecision(ctx, id, time.Duration(timeoutSeconds)*time.Second)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		printJSON(map[string]any{"error": "request not found"})
		return errSilent
	case errors.Is(err, ledger.ErrTimedOut):
		printJSON(map[string]any{"error": "timeout"})
		return errSilent
	case err != nil:
		return err
	}
	return printJSON(map[string]any{"request": request})
}

func runRotateKey() error {
	if _, err := loadOptions(); err != nil {
		return err
	}
	creds := credentials.NewStore(config.CredentialsPath())
	_, accessKey, err := creds.RotateAccessKey()
	if err != nil {
		return err
	}
	fmt.Printf("New access key (store securely): %s\n", accessKey)
	return nil
}

func runRotatePassword() error {
	if _, err := loadOptions(); err != nil {
		return err
	}
	creds := credentials.NewStore(config.CredentialsPath())
	// Fail fast before prompting when nothing is configured.
	if _, err := creds.Load(); err != nil {
		return err
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	if _, err := creds.RotatePassword(password); err != nil {
		return err
	}
	fmt.Println("Password rotated.")
	return nil
}

func runSetPublicURL(args []string) error {
	if len(args) != 1 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: greenlight set-public-url <url>")
	}
	if _, err := loadOptions(); err != nil {
		return err
	}

	creds := credentials.NewStore(config.CredentialsPath())
	record, err := creds.SetPublicURL(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Public URL set: %s\n", *record.PublicURL)
	return nil
}

func runHealth(ctx context.Context) error {
	if _, err := loadOptions(); err != nil {
		return err
	}
	record, err := credentials.NewStore(config.CredentialsPath()).Load()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/health", record.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// openConfigured opens both stores, failing fast when setup has not run.
// A non-zero port overrides and persists the configured listen port.
func openConfigured(port int) (*credentials.Store, *ledger.Ledger, *credentials.Record, error) {
	creds := credentials.NewStore(config.CredentialsPath())
	record, err := creds.EnsureInstanceID()
	if err != nil {
		return nil, nil, nil, err
	}

	if port != 0 && port != record.Port {
		record, err = creds.SetPort(port)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	ldgr := ledger.New(config.LedgerPath())
	if err := ldgr.Ensure(); err != nil {
		return nil, nil, nil, err
	}
	return creds, ldgr, record, nil
}

func parseServeFlags(args []string) (bind string, port int, err error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--bind":
			value, rest, err := takeValue(args, i, "--bind")
			if err != nil {
				return "", 0, err
			}
			i = rest
			bind = value
		case "--port":
			value, rest, err := takeValue(args, i, "--port")
			if err != nil {
				return "", 0, err
			}
			i = rest
			port, err = strconv.Atoi(value)
			if err != nil {
				return "", 0, fmt.Errorf("invalid --port value %q", value)
			}
		default:
			return "", 0, fmt.Errorf("unknown argument: %s", args[i])
		}
	}
	return bind, port, nil
}

// takeValue consumes the value following a flag.
func takeValue(args []string, i int, flag string) (string, int, error) {
	if i+1 >= len(args) {
		return "", i, fmt.Errorf("%s requires a value", flag)
	}
	return args[i+1], i + 1, nil
}

func resolvePassword(password string, passwordStdin bool) (string, error) {
	if password != "" && passwordStdin {
		return "", errors.New("use either --password or --password-stdin")
	}
	if passwordStdin {
		return readPasswordStdin()
	}
	if password != "" {
		return password, nil
	}
	return promptNewPassword()
}

func printServeInfo(record *credentials.Record) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	color.New(color.FgHiBlack).Printf("    version: %s\n\n", version)

	green.Print("    > ")
	fmt.Printf("Instance:  %s\n", record.InstanceID)
	green.Print("    > ")
	fmt.Printf("Local URL: http://127.0.0.1:%d\n", record.Port)
	if record.PublicURL != nil {
		green.Print("    > ")
		fmt.Printf("Public:    %s\n", *record.PublicURL)
	}
	fmt.Println()
}

// probeHealth polls the local health endpoint until the server answers.
func probeHealth(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	deadline := time.Now().Add(5 * time.Second)

	var lastErr error
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return lastErr
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
