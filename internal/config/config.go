// Package config loads plent's configuration from YAML or CUE and turns
// it into a routing registry.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
)

//go:embed schema.cue
var schemaCUE string

// Config is the top-level configuration.
type Config struct {
	BotName         string   `yaml:"bot_name" json:"bot_name"`
	SuperAdmin      uint64   `yaml:"super_admin" json:"super_admin"`
	ReposDir        string   `yaml:"repos_dir" json:"repos_dir"`
	Database        string   `yaml:"database" json:"database"`
	OperatorGuild   uint64   `yaml:"operator_guild" json:"operator_guild"`
	OperatorChannel uint64   `yaml:"operator_channel" json:"operator_channel"`
	AcceptEmoji     string   `yaml:"accept_emoji" json:"accept_emoji"`
	DenyReaction    string   `yaml:"deny_reaction" json:"deny_reaction"`
	SaveChannels    []uint64 `yaml:"save_channels" json:"save_channels"`
	HTTPAddr        string   `yaml:"http_addr" json:"http_addr"`
	Workers         int      `yaml:"workers" json:"workers"`
	Audit           Audit    `yaml:"audit" json:"audit"`
	Repos           []Repo   `yaml:"repos" json:"repos"`

	// dir is the directory of the loaded file; secrets resolve against it.
	dir string
}

// Audit configures the audit webhook.
type Audit struct {
	WebhookURL string  `yaml:"webhook_url" json:"webhook_url"`
	PerMinute  float64 `yaml:"per_minute" json:"per_minute"`
	Username   string  `yaml:"username" json:"username"`
	AvatarURL  string  `yaml:"avatar_url" json:"avatar_url"`
}

// Repo configures one repository.
type Repo struct {
	Name      string    `yaml:"name" json:"name"`
	Guild     uint64    `yaml:"guild" json:"guild"`
	Chief     uint64    `yaml:"chief" json:"chief"`
	Admins    []Person  `yaml:"admins" json:"admins"`
	DenyEmoji string    `yaml:"deny_emoji" json:"deny_emoji"`
	Remote    string    `yaml:"remote" json:"remote"`
	Audit     bool      `yaml:"audit" json:"audit"`
	Channels  []Channel `yaml:"channels" json:"channels"`
	Forums    []Forum   `yaml:"forums" json:"forums"`
}

// Person is an admin, by role or by user.
type Person struct {
	Role uint64 `yaml:"role" json:"role"`
	User uint64 `yaml:"user" json:"user"`
}

// Channel maps a leaf channel to a directory.
type Channel struct {
	ID            uint64   `yaml:"id" json:"id"`
	Dir           string   `yaml:"dir" json:"dir"`
	Labels        []string `yaml:"labels" json:"labels"`
	LabelStrategy string   `yaml:"label_strategy" json:"label_strategy"`
	Strict        bool     `yaml:"strict" json:"strict"`
}

// Forum maps a forum parent to a directory.
type Forum struct {
	ID     uint64 `yaml:"id" json:"id"`
	Dir    string `yaml:"dir" json:"dir"`
	Strict bool   `yaml:"strict" json:"strict"`
}

// Load reads a .yaml/.yml or .cue configuration file, fills defaults and
// validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg, err = parseYAML(data)
	case ".cue":
		cfg, err = parseCUE(path, data)
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.dir = filepath.Dir(path)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func parseYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &cfg, nil
}

func parseCUE(path string, data []byte) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	user := ctx.CompileBytes(data, cue.Filename(path))
	if err := user.Err(); err != nil {
		return nil, fmt.Errorf("compile CUE: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate CUE: %w", err)
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode CUE: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields. Relative paths resolve against the
// directory of the loaded file, if any.
func (c *Config) ApplyDefaults() {
	if c.BotName == "" {
		c.BotName = "plent"
	}
	if c.ReposDir == "" {
		c.ReposDir = "repos"
	}
	if c.Database == "" {
		c.Database = "plent.db"
	}
	if c.AcceptEmoji == "" {
		c.AcceptEmoji = "✅"
	}
	if c.DenyReaction == "" {
		c.DenyReaction = "❌"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Audit.PerMinute <= 0 {
		c.Audit.PerMinute = 30
	}
	if c.Audit.Username == "" {
		c.Audit.Username = c.BotName
	}
	// The operator channel lives in the first repo's guild unless named.
	if c.OperatorGuild == 0 && c.OperatorChannel != 0 && len(c.Repos) > 0 {
		c.OperatorGuild = c.Repos[0].Guild
	}
	if c.dir != "" && !filepath.IsAbs(c.ReposDir) {
		c.ReposDir = filepath.Join(c.dir, c.ReposDir)
	}
	if c.dir != "" && !filepath.IsAbs(c.Database) && c.Database != ":memory:" {
		c.Database = filepath.Join(c.dir, c.Database)
	}
}

// Validate checks cross-field constraints that hold for both formats.
func (c *Config) Validate() error {
	if len(c.Repos) == 0 {
		return errors.New("at least one repo is required")
	}
	names := make(map[string]bool)
	ids := make(map[uint64]string)
	claim := func(id uint64, what string) error {
		if id == 0 {
			return fmt.Errorf("%s: id is required", what)
		}
		if prev, ok := ids[id]; ok {
			return fmt.Errorf("%s: channel %d already used by %s", what, id, prev)
		}
		ids[id] = what
		return nil
	}

	for i, r := range c.Repos {
		where := fmt.Sprintf("repos[%d]", i)
		if !validName(r.Name) {
			return fmt.Errorf("%s: invalid name %q", where, r.Name)
		}
		if names[r.Name] {
			return fmt.Errorf("%s: duplicate repo %q", where, r.Name)
		}
		names[r.Name] = true
		if r.Chief == 0 {
			return fmt.Errorf("%s: chief is required", where)
		}
		if r.DenyEmoji == "" {
			return fmt.Errorf("%s: deny_emoji is required", where)
		}
		for j, p := range r.Admins {
			if (p.Role == 0) == (p.User == 0) {
				return fmt.Errorf("%s.admins[%d]: exactly one of role or user is required", where, j)
			}
		}

		dirs := make(map[string]bool)
		for j, ch := range r.Channels {
			what := fmt.Sprintf("%s.channels[%d]", where, j)
			if err := claim(ch.ID, what); err != nil {
				return err
			}
			if !validName(ch.Dir) || dirs[ch.Dir] {
				return fmt.Errorf("%s: dir %q is invalid or reused", what, ch.Dir)
			}
			dirs[ch.Dir] = true
			if ch.LabelStrategy != "" && len(ch.Labels) > 0 {
				return fmt.Errorf("%s: labels and label_strategy are exclusive", what)
			}
		}
		for j, f := range r.Forums {
			what := fmt.Sprintf("%s.forums[%d]", where, j)
			if err := claim(f.ID, what); err != nil {
				return err
			}
			if !validName(f.Dir) || dirs[f.Dir] {
				return fmt.Errorf("%s: dir %q is invalid or reused", what, f.Dir)
			}
			dirs[f.Dir] = true
		}
	}
	return nil
}

func validName(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// RepoRoot is the working tree of a repository.
func (c *Config) RepoRoot(name string) string {
	return filepath.Join(c.ReposDir, name)
}

// Registry builds the routing registry described by the configuration.
func (c *Config) Registry(strategies registry.Strategies) (*registry.Registry, error) {
	reg := registry.New(strategies)
	strategies = reg.Strategies()
	for _, rc := range c.Repos {
		repo := &registry.Repo{
			Name:      rc.Name,
			Guild:     platform.GuildID(rc.Guild),
			Chief:     platform.UserID(rc.Chief),
			DenyEmoji: platform.Emoji(rc.DenyEmoji),
			Audit:     rc.Audit,
		}
		for _, p := range rc.Admins {
			repo.Admins = append(repo.Admins, registry.Person{Role: platform.RoleID(p.Role), User: platform.UserID(p.User)})
		}
		reg.AddRepo(repo)

		for _, ch := range rc.Channels {
			if ch.LabelStrategy != "" {
				if _, ok := strategies[ch.LabelStrategy]; !ok {
					return nil, fmt.Errorf("repo %s: channel %d: unknown label strategy %q", rc.Name, ch.ID, ch.LabelStrategy)
				}
			}
			e := registry.Entry{
				Repo:   repo,
				Dir:    ch.Dir,
				Labels: registry.LabelSpec{Kind: registry.LabelsFixed, Labels: ch.Labels, Strategy: ch.LabelStrategy},
				Strict: ch.Strict,
			}
			if err := reg.AddChannel(platform.ChannelID(ch.ID), e); err != nil {
				return nil, fmt.Errorf("repo %s: %w", rc.Name, err)
			}
		}
		for _, f := range rc.Forums {
			if err := reg.AddForum(platform.ChannelID(f.ID), registry.Entry{
				Repo:   repo,
				Dir:    f.Dir,
				Labels: registry.LabelSpec{Kind: registry.LabelsForum},
				Strict: f.Strict,
			}); err != nil {
				return nil, fmt.Errorf("repo %s: %w", rc.Name, err)
			}
		}
	}
	for _, id := range c.SaveChannels {
		reg.AllowSaves(platform.ChannelID(id))
	}
	return reg, nil
}
