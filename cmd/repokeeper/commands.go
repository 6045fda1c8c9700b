package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/repokeeper"
	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/health"
	"github.com/poiesic/repokeeper/repository"
	"github.com/urfave/cli/v2"
)

var errUsage = errors.New("wrong number of arguments")

func createCommand(c *cli.Context) error {
	perms, err := parsePermissions(c.StringSlice("permission"))
	if err != nil {
		return err
	}
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		created, err := k.Repositories().Create(ctx, core.Repository{
			Namespace:   c.String("namespace"),
			Name:        c.String("name"),
			Type:        c.String("type"),
			Contact:     c.String("contact"),
			Description: c.String("description"),
			Permissions: perms,
		})
		if err != nil {
			return err
		}
		return printYAML(c, newRepositoryView(core.EnrichedRepository{Repository: created}))
	})
}

func modifyCommand(c *cli.Context) error {
	id, err := singleArg(c)
	if err != nil {
		return err
	}
	perms, err := parsePermissions(c.StringSlice("permission"))
	if err != nil {
		return err
	}
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		current, err := k.Repositories().Get(ctx, core.ID(id))
		if err != nil {
			return err
		}
		repo := current.Repository
		if c.IsSet("namespace") {
			repo.Namespace = c.String("namespace")
		}
		if c.IsSet("name") {
			repo.Name = c.String("name")
		}
		if c.IsSet("contact") {
			repo.Contact = c.String("contact")
		}
		if c.IsSet("description") {
			repo.Description = c.String("description")
		}
		if c.IsSet("permission") {
			repo.Permissions = perms
		}
		modified, err := k.Repositories().Modify(ctx, repo)
		if err != nil {
			return err
		}
		return printYAML(c, newRepositoryView(core.EnrichedRepository{Repository: modified}))
	})
}

func deleteCommand(c *cli.Context) error {
	id, err := singleArg(c)
	if err != nil {
		return err
	}
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		if err := k.Repositories().Delete(ctx, core.ID(id)); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
		return nil
	})
}

func getCommand(c *cli.Context) error {
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		var (
			repo core.EnrichedRepository
			err  error
		)
		switch {
		case c.IsSet("uri"):
			var found bool
			repo, found, err = k.Repositories().GetFromURI(ctx, c.String("uri"))
			if err == nil && !found {
				err = core.NotFound("repository", c.String("uri"))
			}
		case c.IsSet("namespace") || c.IsSet("name"):
			repo, err = k.Repositories().GetByName(ctx, c.String("namespace"), c.String("name"))
		case c.NArg() == 1:
			repo, err = k.Repositories().Get(ctx, core.ID(c.Args().First()))
		default:
			err = fmt.Errorf("%w: expected an id, --namespace and --name, or --uri", errUsage)
		}
		if err != nil {
			return err
		}
		return printYAML(c, newRepositoryView(repo))
	})
}

func listCommand(c *cli.Context) error {
	var opts []repository.ListOption
	if c.IsSet("namespace") {
		opts = append(opts, repository.InNamespace(c.String("namespace")))
	}
	if c.IsSet("offset") || c.IsSet("limit") {
		opts = append(opts, repository.WithPaging(c.Int("offset"), c.Int("limit")))
	}
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		repos, err := k.Repositories().GetAll(ctx, opts...)
		if err != nil {
			return err
		}
		views := make([]repositoryView, 0, len(repos))
		for _, r := range repos {
			views = append(views, newRepositoryView(r))
		}
		return printYAML(c, views)
	})
}

func namespacesCommand(c *cli.Context) error {
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		namespaces, err := k.Namespaces().GetAll(ctx)
		if err != nil {
			return err
		}
		views := make([]namespaceView, 0, len(namespaces))
		for _, ns := range namespaces {
			views = append(views, newNamespaceView(ns))
		}
		return printYAML(c, views)
	})
}

func namespacePermissionsCommand(c *cli.Context) error {
	name, err := singleArg(c)
	if err != nil {
		return err
	}
	perms, err := parsePermissions(c.StringSlice("permission"))
	if err != nil {
		return err
	}
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		ns := core.Namespace{Namespace: name, Permissions: perms}
		if err := k.Namespaces().Modify(ctx, ns); err != nil {
			return err
		}
		return printYAML(c, newNamespaceView(ns))
	})
}

func checkCommand(c *cli.Context) error {
	id, err := singleArg(c)
	if err != nil {
		return err
	}
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		check := k.Checker().LightCheck
		if c.Bool("full") {
			check = k.Checker().FullCheck
		}
		repo, err := check(ctx, core.ID(id))
		if err != nil {
			return err
		}
		return printYAML(c, newRepositoryView(repo))
	})
}

func checkAllCommand(c *cli.Context) error {
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		inline, err := k.Checker().CheckAll(ctx, checkAllBudget(c))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "check-all finished, all checks inline: %t\n", inline)
		return nil
	})
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%w: expected a query", errUsage)
	}
	query := strings.Join(c.Args().Slice(), " ")
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		hits, err := k.Searcher().Search(ctx, c.String("type"), query, c.Int("limit"))
		if err != nil {
			return err
		}
		views := make([]hitView, 0, len(hits))
		for _, h := range hits {
			views = append(views, newHitView(h))
		}
		return printYAML(c, views)
	})
}

func reindexCommand(c *cli.Context) error {
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		types := c.Args().Slice()
		if len(types) == 0 {
			types = k.Synchronizer().Types()
		}
		for _, t := range types {
			if err := k.Synchronizer().Reindex(ctx, t); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "reindexed %s\n", t)
		}
		return nil
	}, repokeeper.WithProgress(c.App.ErrWriter))
}

func scheduleCommand(c *cli.Context) error {
	return withKeeper(c, func(ctx context.Context, k *repokeeper.Keeper) error {
		scheduler := k.Scheduler()
		if c.IsSet("spec") {
			var err error
			scheduler, err = health.NewScheduler(k.Checker(), c.String("spec"), configFrom(c).CheckAllBudget, nil)
			if err != nil {
				return err
			}
			// Keeper.Close only stops its own scheduler.
			defer scheduler.Stop()
		}
		if scheduler == nil {
			return errors.New("no health schedule configured: set healthSchedule or pass --spec")
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		scheduler.Start()
		<-ctx.Done()
		runs, last := scheduler.Runs()
		fmt.Fprintf(c.App.Writer, "scheduler stopped after %d runs (last %s)\n", runs, last.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	})
}

func singleArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%w: expected %s", errUsage, c.Command.ArgsUsage)
	}
	return c.Args().First(), nil
}

// parsePermissions reads name:ROLE entries; a leading @ marks a group.
// A role of the form verbs=a,b grants explicit verbs instead.
func parsePermissions(specs []string) ([]core.RepositoryPermission, error) {
	var perms []core.RepositoryPermission
	for _, spec := range specs {
		name, role, ok := strings.Cut(spec, ":")
		if !ok || name == "" || role == "" {
			return nil, fmt.Errorf("invalid permission %q: expected name:ROLE", spec)
		}
		p := core.RepositoryPermission{Name: name}
		if group, isGroup := strings.CutPrefix(name, "@"); isGroup {
			p.Name = group
			p.GroupPermission = true
		}
		if verbs, isVerbs := strings.CutPrefix(role, "verbs="); isVerbs {
			p.Verbs = strings.Split(verbs, ",")
		} else {
			p.Role = strings.ToUpper(role)
		}
		perms = append(perms, p)
	}
	return perms, nil
}
