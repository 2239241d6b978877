package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/db"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up               apply all pending migrations
  down             roll back the latest migration
  to <version>     move the schema to version (YYYYMMDDHHMMSS)
  status           list migrations and when they were applied
  create <name>    write a new empty migration into -dir
  validate         check file names and goose markers in -dir
`

func main() {
	dir := flag.String("dir", "", "migrations directory on disk (default: embedded set, or "+migrate.SourceDir+" for create/validate)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0), flag.Arg(1), *dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(command, arg, dir string) error {
	// File-only commands never touch the database or config.
	switch command {
	case "create":
		if arg == "" {
			return errors.New("create needs a migration name")
		}
		path, err := migrate.NewFile(orDefault(dir, migrate.SourceDir), arg, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.Validate(os.DirFS(orDefault(dir, migrate.SourceDir))); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.FromConfig("migrate", cfg.App)
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "command": command})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return err
	}

	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	runner, err := migrate.NewRunner(sqlDB, fsys, logg)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		n, err := runner.Up(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("applied %d migration(s)\n", n)
	case "down":
		return runner.Down(ctx)
	case "to":
		if arg == "" {
			return errors.New("to needs a target version")
		}
		return runner.To(ctx, arg)
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT")
		for _, s := range statuses {
			applied := "-"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", s.Source.Version, s.State, applied)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
