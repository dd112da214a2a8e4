// Package main provides the entry point for the WhatsApp Desktop application.
// WhatsApp Desktop links to a WhatsApp account as a companion device and
// relays connection state and messages to a terminal UI running in its own
// process.
//
// Features:
//   - QR code and phone-number pairing
//   - Automatic reconnection with classified disconnect reasons
//   - Terminal UI for reading and sending messages
//   - Desktop notifications for new messages
//   - Command-line interface for scripting and automation
//
// Usage:
//
//	wa-desktop [options]
//
// Without options the shell starts, opens the bridge socket and launches
// the terminal UI when running on a terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/yllada/wa-desktop/bridge"
	"github.com/yllada/wa-desktop/cli"
	"github.com/yllada/wa-desktop/common"
	"github.com/yllada/wa-desktop/config"
	"github.com/yllada/wa-desktop/keyring"
	"github.com/yllada/wa-desktop/notify"
	"github.com/yllada/wa-desktop/session"
	"github.com/yllada/wa-desktop/tui"
	"github.com/yllada/wa-desktop/whatsapp"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

var (
	// General flags
	showVersion = flag.Bool("version", false, "Show version and exit")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	showHelp    = flag.Bool("help", false, "Show help message")
	configFile  = flag.String("config", "", "Configuration file path")

	// Shell flags
	headless   = flag.Bool("headless", false, "Run without launching the UI")
	runTUI     = flag.Bool("tui", false, "Run the terminal UI against a running shell")
	pairNumber = flag.String("pair", "", "Request a pairing code for this phone number")

	// CLI flags
	sendTo       = flag.String("send", "", "Send a message to this phone number")
	messageText  = flag.String("message", "", "Message text for --send")
	listContacts = flag.Bool("contacts", false, "List contacts")
	watchEvents  = flag.Bool("watch", false, "Print events from a running shell")
	resetAuth    = flag.Bool("reset", false, "Delete stored credentials")
)

// errUIExited ends the shell when the UI process is closed.
var errUIExited = errors.New("ui process exited")

func main() {
	flag.Parse()

	// Handle help flag
	if *showHelp {
		cli.PrintHelp()
		os.Exit(0)
	}

	// Handle version flag
	if *showVersion {
		fmt.Printf("WhatsApp Desktop v%s\n", appVersion)
		if buildTime != "unknown" {
			fmt.Printf("  Build:  %s\n", buildTime)
			fmt.Printf("  Commit: %s\n", commitSHA)
		}
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cliMode := *sendTo != "" || *listContacts || *watchEvents || *resetAuth
	launchUI := !cliMode && !*runTUI && shouldLaunchUI(cfg)

	// Initialize logger with structured logging and file output.
	// Whoever draws the UI owns the terminal, so logs go to the file only.
	logLevel := common.ParseLogLevel(cfg.LogLevel)
	if *verbose {
		logLevel = common.LevelDebug
	}

	if err := common.InitLogger(common.LogConfig{
		Level:       logLevel,
		EnableFile:  true,
		Quiet:       *runTUI || launchUI,
		MaxFileSize: 5 * 1024 * 1024, // 5MB
		MaxBackups:  5,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	defer common.CloseLogger()

	// Setup graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals (SIGINT, SIGTERM)
	setupSignalHandler(cancel)

	switch {
	case *resetAuth:
		err = runReset(cfg)
	case cliMode:
		err = runCLI(ctx, cfg)
	case *runTUI:
		err = runUI(ctx, cfg)
	default:
		common.LogInfo("Starting %s v%s", common.AppName, appVersion)
		err = runShell(ctx, cfg, launchUI)
	}

	if err != nil {
		common.LogError("%v", err)
		common.CloseLogger()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if *configFile != "" {
		return config.LoadFrom(*configFile)
	}
	return config.Load()
}

// shouldLaunchUI reports whether the shell starts the terminal UI itself.
func shouldLaunchUI(cfg *config.Config) bool {
	return !*headless && cfg.LaunchUI &&
		term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// runShell runs the bridge, the optional UI process and the connection
// supervisor until the context is cancelled or the UI exits.
func runShell(ctx context.Context, cfg *config.Config, launchUI bool) error {
	log := common.GetLogger()

	token, err := keyring.GetOrCreate(common.BridgeTokenAccount, uuid.NewString)
	if err != nil {
		return fmt.Errorf("bridge token: %w", err)
	}
	socketPath, err := cfg.BridgeSocket()
	if err != nil {
		return err
	}
	authDir, err := cfg.AuthLocation()
	if err != nil {
		return err
	}

	server := bridge.NewServer(socketPath, token, log.Sub("Bridge"))
	backend := &supervisorBackend{}
	bridge.Register(server, backend, log.Sub("Bridge"))
	if err := server.Listen(); err != nil {
		return err
	}

	var sink common.Sink = server
	var notifications *notify.Sink
	if cfg.ShowNotifications {
		desktop := notify.NewDesktop(log.Sub("Notify"))
		defer desktop.Close()
		notifications = notify.NewSink(server, desktop, log.Sub("Notify"))
		sink = notifications
	}

	store := whatsapp.NewStore(authDir, log.Sub("Store"))
	defer store.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	if notifications != nil {
		g.Go(func() error { return notifications.Run(gctx) })
	}

	// The UI starts once the socket exists and before the session, so it
	// sees the first lifecycle events.
	if launchUI {
		cmd, err := startUI(gctx, cfg)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		g.Go(func() error {
			if err := cmd.Wait(); err != nil && gctx.Err() == nil {
				log.Warn("UI process failed: %v", err)
			}
			return errUIExited
		})
	}

	phone := cfg.PairingPhoneNumber
	if *pairNumber != "" {
		phone = strings.TrimPrefix(strings.TrimSpace(*pairNumber), "+")
	}

	sup, err := session.Start(gctx, session.Options{
		Config: session.Config{
			PairingPhoneNumber: phone,
			Namespace:          cfg.Namespace,
			ReconnectDelay:     cfg.ReconnectDelay,
		},
		Store:    store,
		Versions: whatsapp.VersionResolver{},
		Factory:  &whatsapp.Factory{Logger: log.Sub("Client")},
		Renderer: session.DataURLRenderer{Size: cfg.QRSize},
		Sink:     sink,
		Logger:   log.Sub("Session"),
	})
	if err != nil {
		cancel()
		g.Wait()
		return err
	}
	backend.sup.Store(sup)

	g.Go(func() error {
		<-gctx.Done()
		sup.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errUIExited) {
		return err
	}
	log.Info("Shutting down")
	return nil
}

// startUI launches this executable in UI mode on the current terminal.
func startUI(ctx context.Context, cfg *config.Config) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}

	args := []string{"--tui", "--config", cfg.Path()}
	if *verbose {
		args = append(args, "--verbose")
	}
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting UI: %w", err)
	}
	return cmd, nil
}

// runUI is the UI process: it attaches to the shell's bridge and renders.
func runUI(ctx context.Context, cfg *config.Config) error {
	client, err := dialShell(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return tui.Run(ctx, client)
}

func dialShell(ctx context.Context, cfg *config.Config) (*bridge.Client, error) {
	token, err := keyring.Get(common.BridgeTokenAccount)
	if err != nil {
		return nil, fmt.Errorf("bridge token unavailable (has the shell been started?): %w", err)
	}
	socketPath, err := cfg.BridgeSocket()
	if err != nil {
		return nil, err
	}
	return bridge.Dial(ctx, socketPath, token, common.GetLogger().Sub("Bridge"))
}

// runCLI handles command-line interface operations.
// It accepts a context for graceful shutdown support.
func runCLI(ctx context.Context, cfg *config.Config) error {
	token, err := keyring.Get(common.BridgeTokenAccount)
	if err != nil {
		return fmt.Errorf("bridge token unavailable (has the shell been started?): %w", err)
	}
	socketPath, err := cfg.BridgeSocket()
	if err != nil {
		return err
	}

	cliApp, err := cli.New(ctx, socketPath, token, common.GetLogger().Sub("Bridge"))
	if err != nil {
		return err
	}
	defer cliApp.Close()

	switch {
	case *sendTo != "":
		return cliApp.Send(ctx, *sendTo, *messageText)
	case *listContacts:
		return cliApp.Contacts(ctx)
	default:
		return cliApp.Watch(ctx)
	}
}

// runReset deletes the credentials of the configured namespace.
func runReset(cfg *config.Config) error {
	authDir, err := cfg.AuthLocation()
	if err != nil {
		return err
	}
	store := whatsapp.NewStore(authDir, common.GetLogger().Sub("Store"))
	defer store.Close()

	return cli.Reset(store, cfg.Namespace, os.Stdout)
}

// supervisorBackend serves bridge requests before the supervisor exists.
type supervisorBackend struct {
	sup atomic.Pointer[session.Supervisor]
}

func (b *supervisorBackend) Send(ctx context.Context, recipient, text string) error {
	sup := b.sup.Load()
	if sup == nil {
		return common.ErrNotConnected
	}
	return sup.Send(ctx, recipient, text)
}

func (b *supervisorBackend) Contacts(ctx context.Context) ([]common.Contact, error) {
	sup := b.sup.Load()
	if sup == nil {
		return nil, common.ErrNotConnected
	}
	return sup.Contacts(ctx)
}

// setupSignalHandler configures graceful shutdown on SIGINT/SIGTERM.
// When a signal is received, it cancels the context to allow cleanup.
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		common.LogInfo("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()
}
