// Command migrate manages the sync engine's postgres schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/migration"
	"github.com/marketsync/backend/migrations"
)

// Exit codes for status, so deploy scripts can gate on them.
const (
	exitUsage  = 1
	exitDirty  = 2
	exitBehind = 3
)

var errUsage = errors.New("usage")

// schemaCommand runs against a live database.
type schemaCommand func(m *migration.Migrator, args []string, log *zap.Logger) (int, error)

var schemaCommands = map[string]schemaCommand{
	"up": func(m *migration.Migrator, _ []string, _ *zap.Logger) (int, error) {
		return 0, m.Up()
	},
	"down": func(m *migration.Migrator, args []string, _ *zap.Logger) (int, error) {
		if !hasFlag(args, "confirm") {
			return exitUsage, errors.New("down drops every sync table; rerun as 'migrate down -confirm'")
		}
		return 0, m.Down()
	},
	"step": func(m *migration.Migrator, args []string, _ *zap.Logger) (int, error) {
		n, err := intArg(args, "step count")
		if err != nil {
			return exitUsage, err
		}
		return 0, m.Steps(n)
	},
	"goto": func(m *migration.Migrator, args []string, _ *zap.Logger) (int, error) {
		v, err := intArg(args, "version")
		if err != nil {
			return exitUsage, err
		}
		if v < 0 {
			return exitUsage, fmt.Errorf("version %d is negative: %w", v, errUsage)
		}
		return 0, m.GoTo(uint(v))
	},
	"force": func(m *migration.Migrator, args []string, _ *zap.Logger) (int, error) {
		v, err := intArg(args, "version")
		if err != nil {
			return exitUsage, err
		}
		return 0, m.Force(v)
	},
	"status": status,
	// version is kept as an alias of status
	"version": status,
}

func status(m *migration.Migrator, _ []string, log *zap.Logger) (int, error) {
	st, err := m.Status()
	if err != nil {
		return 1, err
	}
	log.Info("Schema status",
		zap.Uint("current", st.Current),
		zap.Uint("latest", st.Latest),
		zap.Int("pending", st.Pending),
		zap.Bool("dirty", st.Dirty),
	)
	switch {
	case st.Dirty:
		return exitDirty, migration.ErrSchemaDirty
	case !st.UpToDate():
		return exitBehind, nil
	}
	return 0, nil
}

func main() {
	dir := flag.String("path", "", "Read migrations from this directory instead of the embedded set")
	level := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(exitUsage)
	}

	log, err := logger.New(&logger.Config{
		Level:      *level,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	code := run(flag.Arg(0), flag.Args()[1:], *dir, log)
	_ = logger.Sync(log)
	os.Exit(code)
}

func run(name string, args []string, dir string, log *zap.Logger) int {
	var source fs.FS = migrations.FS
	if dir != "" {
		source = os.DirFS(dir)
	}
	log = log.With(zap.String("command", name))

	switch name {
	case "create":
		return create(args, dir, log)
	case "list":
		found, err := migration.ListMigrations(source)
		if err != nil {
			log.Error("Failed to list migrations", zap.Error(err))
			return 1
		}
		for _, m := range found {
			fmt.Println(m)
		}
		return 0
	}

	cmd, ok := schemaCommands[name]
	if !ok {
		log.Error("Unknown command")
		usage()
		return exitUsage
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", zap.Error(err))
		return 1
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("Failed to open database", zap.Error(err))
		return 1
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Error("Database unreachable", zap.String("host", cfg.Database.Host), zap.Error(err))
		return 1
	}

	m, err := migration.New(db, source, log)
	if err != nil {
		log.Error("Failed to create migrator", zap.Error(err))
		return 1
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}()

	code, err := cmd(m, args, log)
	if err != nil {
		log.Error("Command failed", zap.Error(err))
		if code == 0 {
			code = 1
		}
	}
	return code
}

func create(args []string, dir string, log *zap.Logger) int {
	if len(args) == 0 {
		log.Error("Migration name required: migrate create <name> [description]")
		return exitUsage
	}
	if dir == "" {
		dir = "migrations"
	}
	var description string
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		log.Error("Failed to create migration", zap.Error(err))
		return 1
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up", mf.UpPath),
		zap.String("down", mf.DownPath),
	)
	return 0
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s required: %w", what, errUsage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number: %w", what, args[0], errUsage)
	}
	return n, nil
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == "-"+name || a == "--"+name {
			return true
		}
	}
	return false
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: migrate [flags] <command> [args]

Commands:
  up                    Apply all pending migrations
  down -confirm         Roll back every migration
  step <n>              Apply n migrations, or roll back when n is negative
  goto <version>        Migrate up or down to version
  status                Print the applied and latest version (exit 3 when behind, 2 when dirty)
  force <version>       Record version without running it, to repair a dirty schema
  create <name> [desc]  Write the next numbered up/down pair into -path
  list                  List available migrations

Flags:
`)
	flag.PrintDefaults()
	fmt.Fprint(os.Stderr, `
Connection settings come from config.toml and SYNC_DATABASE_* variables.
`)
}
