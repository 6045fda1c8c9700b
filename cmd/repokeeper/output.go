package main

import (
	"time"

	"github.com/poiesic/repokeeper/core"
	"github.com/poiesic/repokeeper/index"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

type permissionView struct {
	Name  string   `yaml:"name"`
	Group bool     `yaml:"group,omitempty"`
	Role  string   `yaml:"role,omitempty"`
	Verbs []string `yaml:"verbs,omitempty"`
}

type failureView struct {
	ID          string `yaml:"id"`
	Summary     string `yaml:"summary"`
	Description string `yaml:"description,omitempty"`
	URL         string `yaml:"url,omitempty"`
}

type repositoryView struct {
	ID           string           `yaml:"id"`
	Namespace    string           `yaml:"namespace"`
	Name         string           `yaml:"name"`
	Type         string           `yaml:"type"`
	Contact      string           `yaml:"contact,omitempty"`
	Description  string           `yaml:"description,omitempty"`
	CreationDate time.Time        `yaml:"creationDate"`
	LastModified *time.Time       `yaml:"lastModified,omitempty"`
	Permissions  []permissionView `yaml:"permissions,omitempty"`
	Failures     []failureView    `yaml:"healthCheckFailures,omitempty"`
}

type namespaceView struct {
	Namespace   string           `yaml:"namespace"`
	Permissions []permissionView `yaml:"permissions,omitempty"`
}

type hitView struct {
	ID     string            `yaml:"id"`
	Score  int               `yaml:"score"`
	Fields map[string]string `yaml:"fields"`
}

func newRepositoryView(r core.EnrichedRepository) repositoryView {
	v := repositoryView{
		ID:           r.ID.String(),
		Namespace:    r.Namespace,
		Name:         r.Name,
		Type:         r.Type,
		Contact:      r.Contact,
		Description:  r.Description,
		CreationDate: r.CreationDate,
		Permissions:  newPermissionViews(r.Permissions),
	}
	if !r.LastModified.IsZero() {
		modified := r.LastModified
		v.LastModified = &modified
	}
	for _, f := range r.HealthCheckFailures {
		v.Failures = append(v.Failures, failureView(f))
	}
	return v
}

func newNamespaceView(ns core.Namespace) namespaceView {
	return namespaceView{
		Namespace:   ns.Namespace,
		Permissions: newPermissionViews(ns.Permissions),
	}
}

func newPermissionViews(perms []core.RepositoryPermission) []permissionView {
	var views []permissionView
	for _, p := range perms {
		views = append(views, permissionView{
			Name:  p.Name,
			Group: p.GroupPermission,
			Role:  p.Role,
			Verbs: p.Verbs,
		})
	}
	return views
}

func newHitView(h index.Hit) hitView {
	return hitView{
		ID:     h.Document.ID,
		Score:  h.Score,
		Fields: h.Document.Fields,
	}
}

func printYAML(c *cli.Context, v any) error {
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
