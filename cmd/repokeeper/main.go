// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/repokeeper"
	"github.com/poiesic/repokeeper/config"
	"github.com/poiesic/repokeeper/permission"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "repokeeper",
		Usage: "Manage repositories, namespaces and their health",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
			},
			&cli.StringFlag{
				Name:  "repositories",
				Usage: "Base directory for repositories on disk",
			},
			&cli.BoolFlag{
				Name:  "in-memory",
				Usage: "Keep all data in memory",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Name of the acting user",
			},
			&cli.StringSliceFlag{
				Name:  "group",
				Usage: "Group of the acting user (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "grant",
				Usage: "Permission granted to the acting user, e.g. repository:read:* (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "admin",
				Usage: "Act with administrative rights",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Create a repository",
				Action: createCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "namespace", Aliases: []string{"n"}, Usage: "Namespace of the repository", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Name of the repository", Required: true},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Repository type", Value: "git"},
					&cli.StringFlag{Name: "contact", Usage: "Contact address"},
					&cli.StringFlag{Name: "description", Usage: "Free text description"},
					&cli.StringSliceFlag{Name: "permission", Usage: "Permission as name:ROLE or @group:ROLE (repeatable)"},
				},
			},
			{
				Name:      "modify",
				Usage:     "Modify a repository",
				ArgsUsage: "<id>",
				Action:    modifyCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "namespace", Aliases: []string{"n"}, Usage: "New namespace"},
					&cli.StringFlag{Name: "name", Usage: "New name"},
					&cli.StringFlag{Name: "contact", Usage: "New contact address"},
					&cli.StringFlag{Name: "description", Usage: "New description"},
					&cli.StringSliceFlag{Name: "permission", Usage: "Replace permissions with name:ROLE or @group:ROLE (repeatable)"},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a repository",
				ArgsUsage: "<id>",
				Action:    deleteCommand,
			},
			{
				Name:      "get",
				Usage:     "Show a repository by id, by namespace and name, or by URI",
				ArgsUsage: "[id]",
				Action:    getCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "namespace", Aliases: []string{"n"}, Usage: "Namespace, used with --name"},
					&cli.StringFlag{Name: "name", Usage: "Name, used with --namespace"},
					&cli.StringFlag{Name: "uri", Usage: "Path of the form <type>/<namespace>/<name>[/<rest>]"},
				},
			},
			{
				Name:   "list",
				Usage:  "List repositories visible to the acting user",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "namespace", Aliases: []string{"n"}, Usage: "Only list this namespace"},
					&cli.IntFlag{Name: "offset", Usage: "Skip this many repositories"},
					&cli.IntFlag{Name: "limit", Usage: "Return at most this many repositories (0 for all)"},
				},
			},
			{
				Name:   "namespaces",
				Usage:  "List namespaces",
				Action: namespacesCommand,
			},
			{
				Name:      "namespace-permissions",
				Usage:     "Replace the permissions of a namespace",
				ArgsUsage: "<namespace>",
				Action:    namespacePermissionsCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "permission", Usage: "Permission as name:ROLE or @group:ROLE (repeatable)"},
				},
			},
			{
				Name:      "check",
				Usage:     "Run health checks on a repository",
				ArgsUsage: "<id>",
				Action:    checkCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "full", Usage: "Run the backend's full check as well"},
				},
			},
			{
				Name:   "check-all",
				Usage:  "Run full health checks on every repository",
				Action: checkAllCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "budget", Usage: "Time to run checks inline before queueing the rest (defaults to the configured budget)"},
				},
			},
			{
				Name:      "search",
				Usage:     "Search the repository index",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Document type", Value: "repository"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of hits", Value: 20},
				},
			},
			{
				Name:      "reindex",
				Usage:     "Rebuild the search index",
				ArgsUsage: "[type...]",
				Action:    reindexCommand,
			},
			{
				Name:   "schedule",
				Usage:  "Run scheduled health checks until interrupted",
				Action: scheduleCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "spec", Usage: "Cron spec overriding the configured schedule"},
				},
			},
		},
	}
}

// setup loads the configuration and installs the logger. The --log-level flag
// wins over the configured level.
func setup(c *cli.Context) error {
	var opts []config.Option
	if c.IsSet("data") {
		opts = append(opts, config.WithDataDir(c.String("data")))
	}
	if c.IsSet("repositories") {
		opts = append(opts, config.WithRepositoryDir(c.String("repositories")))
	}
	if c.IsSet("in-memory") {
		opts = append(opts, config.WithInMemory(c.Bool("in-memory")))
	}
	if c.IsSet("log-level") {
		opts = append(opts, config.WithLogLevel(c.String("log-level")))
	}

	var cfg *config.Config
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path, opts...); err != nil {
			return err
		}
	} else {
		cfg = config.NewConfig(opts...)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return setupLogger(cfg.LogLevel)
}

func setupLogger(levelStr string) error {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

func subjectFrom(c *cli.Context) permission.Subject {
	if !c.IsSet("user") && !c.Bool("admin") {
		return permission.Anonymous
	}
	name := c.String("user")
	if name == "" {
		name = permission.AdminName
	}
	return permission.Subject{
		Name:    name,
		Groups:  c.StringSlice("group"),
		Admin:   c.Bool("admin"),
		Granted: c.StringSlice("grant"),
	}
}

// withKeeper opens a Keeper for the duration of fn. The context carries the
// acting subject.
func withKeeper(c *cli.Context, fn func(ctx context.Context, k *repokeeper.Keeper) error, opts ...repokeeper.Option) error {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = permission.WithSubject(ctx, subjectFrom(c))

	k, err := repokeeper.Open(ctx, configFrom(c), opts...)
	if err != nil {
		return fmt.Errorf("failed to open repokeeper: %w", err)
	}
	defer func() {
		if err := k.Close(); err != nil {
			slog.Error("error closing repokeeper", "err", err)
		}
	}()
	return fn(ctx, k)
}

func checkAllBudget(c *cli.Context) time.Duration {
	if c.IsSet("budget") {
		return c.Duration("budget")
	}
	return configFrom(c).CheckAllBudget
}
