package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/browser"
	log "github.com/sirupsen/logrus"

	"github.com/drummonds/travellens-web/internal/backend"
	"github.com/drummonds/travellens-web/internal/demo"
	"github.com/drummonds/travellens-web/internal/preview"
	"github.com/drummonds/travellens-web/internal/session"
	"github.com/drummonds/travellens-web/internal/theme"
	"github.com/drummonds/travellens-web/internal/web"
)

// --- Main ---

func main() {
	demoMode := flag.Bool("demo", false, "Run against a built-in demo backend (no CBIR server needed)")
	initCfg := flag.Bool("init", false, "Write an example "+configFileName+" and exit")
	addr := flag.String("addr", "", "Override listen address (e.g. :9090)")
	open := flag.Bool("open", false, "Open the frontend in the default browser")
	release := flag.Bool("release", false, "Run gin in release mode")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Usage = printUsage
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	if *release {
		gin.SetMode(gin.ReleaseMode)
	}

	if *initCfg {
		if err := writeExampleConfig(configFileName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", configFileName)
		return
	}

	var cfg Config
	switch {
	case *demoMode:
		cfg = defaultConfig()
		url, err := startDemoBackend()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting demo backend: %v\n", err)
			os.Exit(1)
		}
		cfg.BackendURL = url
		log.Printf("Running in demo mode (in-memory backend at %s)", url)

	default:
		var err error
		cfg, err = loadConfig(configFileName)
		if err != nil {
			if os.IsNotExist(err) {
				printUsage()
				os.Exit(0)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cfg.BackendURL == "" {
			fmt.Fprintf(os.Stderr, "Error: backend_url must be set in %s\n", configFileName)
			os.Exit(1)
		}
	}

	if *addr != "" {
		cfg.Addr = *addr
	}
	s, err := cfg.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *demoMode {
		s.stateFile = filepath.Join(s.cacheDir, "demo-state.db")
	}

	if err := serve(s, *demoMode, *open); err != nil {
		log.Fatal(err)
	}
}

// startDemoBackend serves the in-memory backend on a loopback port.
func startDemoBackend() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go func() {
		if err := http.Serve(ln, demo.NewSeeded().Handler()); err != nil {
			log.Printf("demo: backend stopped: %v", err)
		}
	}()
	return "http://" + ln.Addr().String(), nil
}

// --- Server ---

func serve(s settings, isDemo, open bool) error {
	client := backend.NewClient(s.BackendURL, s.timeout)
	checkBackend(client)

	store, err := theme.OpenBoltStore(s.stateFile)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer store.Close()
	pref, err := theme.Load(store)
	if err != nil {
		return fmt.Errorf("loading theme: %w", err)
	}

	previews, err := preview.NewStore(filepath.Join(s.cacheDir, "previews"))
	if err != nil {
		return fmt.Errorf("preview dir: %w", err)
	}

	sessions := session.NewManager(session.Workflows(client, previews), s.sessionTTL)
	defer sessions.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sessions.Run(ctx, time.Minute)

	srv := &http.Server{
		Addr: s.Addr,
		Handler: web.New(web.Options{
			Sessions:   sessions,
			Theme:      pref,
			Previews:   previews,
			BackendURL: s.BackendURL,
			IsDemo:     isDemo,
			SessionTTL: s.sessionTTL,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	url := localURL(ln.Addr())
	log.Printf("travellens-web serving on %s", url)
	log.Printf("  backend: %s", s.BackendURL)
	log.Printf("  cache: %s", s.cacheDir)
	if open {
		if err := browser.OpenURL(url); err != nil {
			log.Printf("open: %v", err)
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// checkBackend logs whether the backend answers; the frontend runs either way.
func checkBackend(c *backend.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	labels, err := c.LabelsSummary(ctx)
	if err != nil {
		log.Printf("WARNING: backend at %s not reachable: %v", c.BaseURL(), err)
		return
	}
	log.Printf("Connected to backend at %s (%d labels)", c.BaseURL(), len(labels))
}

func localURL(a net.Addr) string {
	if tcp, ok := a.(*net.TCPAddr); ok && (tcp.IP == nil || tcp.IP.IsUnspecified()) {
		return fmt.Sprintf("http://localhost:%d", tcp.Port)
	}
	return "http://" + a.String()
}
