package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/busline/dscope/pkg/caller"
	"github.com/busline/dscope/pkg/config"
	"github.com/busline/dscope/pkg/dbusconn"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dscope [flags]\n\nBrowse and call D-Bus services interactively.\n\nFlags:\n")
		flag.PrintDefaults()
	}

	configPath := flag.String("config", "", "path to configuration file (default: ~/.config/dscope/config.yaml)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	bus := flag.String("bus", "", "bus to connect to: session or system (default: session)")
	address := flag.String("address", "", "raw bus address, overrides --bus")
	filter := flag.String("filter", "", "initial service name filter")
	flag.Parse()

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, *bus, *address, *filter); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, busFlag, addressFlag, filterFlag string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	if p := config.ResolvePath(configPath); p != "" {
		var err error
		cfg, err = config.Load(p)
		if err != nil {
			return err
		}
	}
	if busFlag != "" {
		cfg.Bus = busFlag
	}
	if addressFlag != "" {
		cfg.Address = addressFlag
	}
	if filterFlag != "" {
		cfg.Services.Filter = filterFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	conn, err := dbusconn.Connect(cfg.Bus, cfg.Address)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	var opts []caller.Option
	if d := cfg.Timeout(); d > 0 {
		opts = append(opts, caller.WithTimeout(d))
	}
	if cfg.ServiceLimit > 0 {
		opts = append(opts, caller.WithServiceLimit(cfg.ServiceLimit))
	}
	orch := caller.New(conn, caller.NewEventBus(), opts...)

	busLabel := cfg.Bus
	if cfg.Address != "" {
		busLabel = cfg.Address
	}
	if busLabel == "" {
		busLabel = "session"
	}

	model := newAppModel(ctx, orch, busLabel, conn.Name(), cfg.Services.Filter, cfg.Services.HideUnique)

	p := tea.NewProgram(model, tea.WithAltScreen())

	// Send the program reference so the model can start the bridge goroutine.
	go func() {
		p.Send(programReadyMsg{program: p})
	}()

	_, err = p.Run()
	return err
}
