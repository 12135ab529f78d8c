// Package profile loads declarative watch profiles: YAML documents listing
// the signal subscriptions a watch session should establish.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"buswatch/internal/bus"
	"buswatch/internal/domain"
	"buswatch/internal/match"

	"gopkg.in/yaml.v3"
)

// Subscription is one declared filter. Field semantics follow match.Filter:
// empty means wildcard, args constrain positional string values by index.
type Subscription struct {
	Member    string         `yaml:"member,omitempty"`
	Interface string         `yaml:"interface,omitempty"`
	Sender    string         `yaml:"sender,omitempty"`
	Path      string         `yaml:"path,omitempty"`
	Args      map[int]string `yaml:"args,omitempty"`

	SenderKeyword    string `yaml:"senderKeyword,omitempty"`
	PathKeyword      string `yaml:"pathKeyword,omitempty"`
	InterfaceKeyword string `yaml:"interfaceKeyword,omitempty"`
	MemberKeyword    string `yaml:"memberKeyword,omitempty"`
}

// Filter converts the declaration into the engine's filter shape.
func (s Subscription) Filter() match.Filter {
	return match.Filter{
		Member:           s.Member,
		Interface:        s.Interface,
		Sender:           s.Sender,
		Path:             s.Path,
		Args:             s.Args,
		SenderKeyword:    s.SenderKeyword,
		PathKeyword:      s.PathKeyword,
		InterfaceKeyword: s.InterfaceKeyword,
		MemberKeyword:    s.MemberKeyword,
	}
}

// Profile is a named set of subscriptions.
type Profile struct {
	Name          string         `yaml:"name"`
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// Load reads and validates a single profile file. A missing name defaults to
// the file's base name.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for _, sub := range p.Subscriptions {
		for i := range sub.Args {
			if i < 0 {
				return nil, &domain.InvalidFilterError{
					Reason: fmt.Sprintf("profile %s: negative argument index %d", p.Name, i),
				}
			}
		}
	}
	return &p, nil
}

// LoadDirectory loads every .yaml/.yml profile in dir. Files that do not
// parse are skipped with a warning; a missing directory yields no profiles.
func LoadDirectory(dir string, logger *slog.Logger) ([]*Profile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("profile directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profile dir: %w", err)
	}

	var profiles []*Profile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		p, err := Load(path)
		if err != nil {
			logger.Warn("cannot load profile", "path", path, "err", err)
			continue
		}
		logger.Info("loaded watch profile", "name", p.Name, "path", path)
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Apply establishes every subscription in the profile on the connection,
// delivering all of them to h.
func (p *Profile) Apply(ctx context.Context, conn *bus.Connection, h domain.Handler) error {
	for _, sub := range p.Subscriptions {
		if err := conn.Subscribe(ctx, h, sub.Filter()); err != nil {
			return fmt.Errorf("profile %s: subscribe %q: %w", p.Name, sub.Member, err)
		}
	}
	return nil
}
