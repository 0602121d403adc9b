package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/config"
	"invoice-financing/ledger-backend/internal/financing"
	"invoice-financing/ledger-backend/internal/observability"
	"invoice-financing/ledger-backend/internal/storage"
)

const usage = `usage: ledger-snapshot [-config path] <command> [flags]

commands:
  export -out file   write the configured store to a snapshot file
  restore -in file   load a snapshot file into an empty configured store
  inspect -in file   print the counts held by a snapshot file
`

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.json"
	}
	configPath := flag.String("config", defaultPath, "path to the JSON config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "export":
		err = runExport(ctx, cfg, logger, args)
	case "restore":
		err = runRestore(ctx, cfg, logger, args)
	case "inspect":
		err = runInspect(args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("Snapshot command failed", zap.String("command", command), zap.Error(err))
	}
}

func runExport(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", cfg.Snapshot.Path, "snapshot file to write")
	fs.Parse(args)
	if *out == "" {
		return fmt.Errorf("export needs -out or snapshot.path")
	}

	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	snap, err := storage.Save(ctx, store, *out)
	if err != nil {
		return err
	}
	logger.Info("Snapshot exported",
		zap.String("path", *out),
		zap.String("driver", cfg.Database.Driver),
		zap.Int("invoices", len(snap.Invoices)),
		zap.Int("investments", len(snap.Investments)),
		zap.Int("participants", len(snap.Participants)),
	)
	return nil
}

func runRestore(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	in := fs.String("in", "", "snapshot file to load")
	fs.Parse(args)
	if *in == "" {
		return fmt.Errorf("restore needs -in")
	}
	if cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("restore needs a database driver, the memory store does not outlive this process")
	}

	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	restored, err := storage.Restore(ctx, store, *in, logger)
	if err != nil {
		return err
	}
	if !restored {
		return fmt.Errorf("snapshot %s not found", *in)
	}
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	in := fs.String("in", "", "snapshot file to read")
	fs.Parse(args)

	snap, err := financing.ReadSnapshotFile(*in)
	if err != nil {
		return err
	}
	counts := map[financing.InvoiceStatus]int{}
	for _, invoice := range snap.Invoices {
		counts[invoice.Status]++
	}
	fmt.Printf("version:      %d\n", snap.Version)
	fmt.Printf("taken at:     %s (%s)\n", snap.TakenAt.Format("2006-01-02 15:04:05 MST"), humanize.Time(snap.TakenAt))
	fmt.Printf("invoices:     %d (pending %d, funded %d, settled %d)\n",
		len(snap.Invoices),
		counts[financing.InvoiceStatusPending],
		counts[financing.InvoiceStatusFunded],
		counts[financing.InvoiceStatusSettled])
	fmt.Printf("investments:  %d\n", len(snap.Investments))
	fmt.Printf("participants: %d\n", len(snap.Participants))
	return nil
}
