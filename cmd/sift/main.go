// Command sift is the operator CLI: it triages tickets from the terminal and
// imports knowledge base files into PostgreSQL.
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

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/bootstrap"
	sc "github.com/linnemanlabs/sift/internal/cfg"
	"github.com/linnemanlabs/sift/internal/kb"
	"github.com/linnemanlabs/sift/internal/triage"
)

const appName = "sift"

const usage = `usage: sift <command> [flags]

commands:
  triage     triage -description, or each line read from stdin
  import-kb  replace the PostgreSQL knowledge base with a JSON, YAML or XLSX file
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
	if len(args) == 0 {
		return errors.New(strings.TrimSpace(usage))
	}
	var err error
	switch args[0] {
	case "triage":
		err = runTriage(ctx, args[1:], stdin, stdout)
	case "import-kb":
		err = runImport(ctx, args[1:], stdout)
	case "-h", "-help", "--help", "help":
		_, _ = io.WriteString(stdout, usage)
	default:
		err = fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

// setup parses shared config for a subcommand. extra registers the
// subcommand's own flags.
func setup(name string, args []string, extra func(*flag.FlagSet)) (*sc.Config, log.Logger, error) {
	var (
		appCfg  sc.Config
		logCfg  log.Config
		envFile string
	)
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	appCfg.RegisterFlags(fs)
	logCfg.RegisterFlags(fs)
	fs.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config is read (missing file is ignored)")
	extra(fs)

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if err := bootstrap.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	cfg.FillFromEnv(fs, "SIFT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := errors.Join(appCfg.Validate(), logCfg.Validate()); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(appName))
	if err != nil {
		return nil, nil, fmt.Errorf("logger init: %w", err)
	}
	return &appCfg, lg.With("component", "cli", "command", name), nil
}

func runTriage(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	var description string
	appCfg, L, err := setup("triage", args, func(fs *flag.FlagSet) {
		fs.StringVar(&description, "description", "", "ticket text to triage (empty = read one ticket per line from stdin)")
	})
	if err != nil {
		return err
	}
	ctx = log.WithContext(ctx, L)

	index, err := bootstrap.LoadKnowledgeBase(ctx, appCfg, L)
	if err != nil {
		return err
	}
	provider, err := bootstrap.NewProvider(appCfg, L, triage.Hooks{})
	if err != nil {
		return err
	}
	svc := triage.NewService(provider, index, triage.Options{
		MaxRelated: appCfg.MaxRelated,
	}, L, nil, nil)

	if description != "" {
		return triageOne(ctx, svc, description, stdout)
	}
	return triageLines(ctx, svc, stdin, stdout)
}

func triageOne(ctx context.Context, svc *triage.Service, description string, stdout io.Writer) error {
	res, err := svc.Triage(ctx, description)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// triageLines triages each non-blank line. Validation errors are reported
// inline so one short line does not end the session.
func triageLines(ctx context.Context, svc *triage.Service, stdin io.Reader, stdout io.Writer) error {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		err := triageOne(ctx, svc, line, stdout)
		var verr *triage.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(stdout, "skipped: %v\n", verr)
			continue
		}
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	var file string
	appCfg, L, err := setup("import-kb", args, func(fs *flag.FlagSet) {
		fs.StringVar(&file, "file", "", "knowledge base file to import (.json, .yaml or .xlsx)")
	})
	if err != nil {
		return err
	}
	if file == "" {
		return errors.New("import-kb: -file is required")
	}
	if appCfg.DatabaseURL == "" {
		return errors.New("import-kb: DATABASE_URL is required")
	}
	ctx = log.WithContext(ctx, L)

	entries, err := kb.NewFileSource(file, L).Load(ctx)
	if err != nil {
		return err
	}

	store, closeStore, err := bootstrap.OpenKBStore(ctx, appCfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Replace(ctx, entries); err != nil {
		return fmt.Errorf("import %s: %w", file, err)
	}
	L.Info(ctx, "knowledge base imported", "file", file, "entries", len(entries))
	fmt.Fprintf(stdout, "imported %d entries from %s\n", len(entries), file)
	return nil
}
