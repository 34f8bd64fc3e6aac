package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"ResourceAPI/internal/config"
	"ResourceAPI/internal/store"
	"ResourceAPI/pkg/logging"
)

func main() {
	if err := newApp(openMigrator).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %+v\n", err)
		os.Exit(1)
	}
}

// migratorOpener открывает migrate для команды; в тестах подменяется
type migratorOpener func(c *cli.Context) (*migrate.Migrate, logrus.FieldLogger, error)

type migrationAction func(c *cli.Context, m *migrate.Migrate, log logrus.FieldLogger) error

// newApp собирает CLI. Аргументы команд проверяются в Before, до подключения к базе
func newApp(open migratorOpener) *cli.App {
	withMigrator := func(fn migrationAction) cli.ActionFunc {
		return func(c *cli.Context) error {
			m, log, err := open(c)
			if err != nil {
				return err
			}
			defer func() { _, _ = m.Close() }()
			return fn(c, m, log)
		}
	}

	return &cli.App{
		Name:  "migrate",
		Usage: "manage the resources database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
				Usage:   "Set logging level",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print migrate driver details",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrate, log logrus.FieldLogger) error {
					if err := m.Up(); err != nil {
						if errors.Is(err, migrate.ErrNoChange) {
							log.Info("schema is up to date")
							return nil
						}
						return errors.Wrap(err, "up")
					}
					return printVersion(m, log)
				}),
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
				},
				Before: func(c *cli.Context) error {
					_, err := parseSteps(c)
					return err
				},
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrate, log logrus.FieldLogger) error {
					steps, err := parseSteps(c)
					if err != nil {
						return err
					}
					if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return errors.Wrap(err, "down")
					}
					return printVersion(m, log)
				}),
			},
			{
				Name:  "version",
				Usage: "print the current schema version",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrate, log logrus.FieldLogger) error {
					return printVersion(m, log)
				}),
			},
			{
				Name:      "force",
				Usage:     "set the schema version without running migrations (clears the dirty flag)",
				ArgsUsage: "VERSION",
				Before: func(c *cli.Context) error {
					_, err := parseForceVersion(c)
					return err
				},
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrate, log logrus.FieldLogger) error {
					v, err := parseForceVersion(c)
					if err != nil {
						return err
					}
					if err := m.Force(v); err != nil {
						return errors.Wrap(err, "force")
					}
					return printVersion(m, log)
				}),
			},
		},
	}
}

// openMigrator открывает migrate поверх встроенных миграций с DSN из конфигурации
func openMigrator(c *cli.Context) (*migrate.Migrate, logrus.FieldLogger, error) {
	log, err := logging.New(c.String("log-level"), false)
	if err != nil {
		return nil, nil, err
	}
	db, err := config.LoadDatabase()
	if err != nil {
		return nil, nil, err
	}
	m, err := store.NewMigrator(c.Context, db.Options().DSN())
	if err != nil {
		return nil, nil, err
	}
	m.Log = logging.NewMigrateLogger(log, c.Bool("verbose"))
	return m, log, nil
}

func parseSteps(c *cli.Context) (int, error) {
	steps := c.Int("steps")
	if steps < 1 {
		return 0, errors.Errorf("--steps must be positive, got %d", steps)
	}
	return steps, nil
}

// parseForceVersion разбирает VERSION; -1 допустим и означает "нет версии"
func parseForceVersion(c *cli.Context) (int, error) {
	arg := c.Args().First()
	v, err := strconv.Atoi(arg)
	if err != nil || v < -1 {
		return 0, errors.Errorf("force requires a numeric VERSION, got %q", arg)
	}
	return v, nil
}

func printVersion(m *migrate.Migrate, log logrus.FieldLogger) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("no migrations applied")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "version")
	}
	log.WithFields(logrus.Fields{"version": v, "dirty": dirty}).Info("schema version")
	return nil
}
