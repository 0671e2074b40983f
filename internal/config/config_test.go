package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
)

const yamlConfig = `
bot_name: plent
super_admin: 696196765564534825
operator_channel: 1199
save_channels: [1300]
audit:
  per_minute: 12
repos:
  - name: cd
    guild: 925674713429184564
    chief: 696196765564534825
    deny_emoji: "<:deny:1192388789952319499>"
    audit: true
    admins:
      - role: 925676016708489227
      - user: 332054403160735765
    channels:
      - id: 1100
        dir: defensive
        labels: [Defensive]
        strict: true
      - id: 1101
        dir: units
        label_strategy: unit-factory
    forums:
      - id: 1200
        dir: forum
`

const cueConfig = `
bot_name: "plent"
repos: [{
	name:       "cd"
	chief:      696196765564534825
	deny_emoji: "<:deny:1192388789952319499>"
	channels: [{id: 1100, dir: "defensive", labels: ["Defensive"]}]
	forums: [{id: 1200, dir: "forum"}]
}]
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "plent.yaml", yamlConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "plent", cfg.BotName)
	assert.Equal(t, uint64(696196765564534825), cfg.SuperAdmin)
	assert.Equal(t, 12.0, cfg.Audit.PerMinute)
	assert.Equal(t, "plent", cfg.Audit.Username)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "repos"), cfg.ReposDir)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "plent.db"), cfg.Database)
	require.Len(t, cfg.Repos, 1)
	assert.Len(t, cfg.Repos[0].Admins, 2)
	assert.True(t, cfg.Repos[0].Channels[0].Strict)
	assert.Equal(t, uint64(1199), cfg.OperatorChannel)
	assert.Equal(t, uint64(925674713429184564), cfg.OperatorGuild)
}

func TestLoadYAML_OperatorGuild(t *testing.T) {
	path := writeConfig(t, "plent.yaml", "operator_guild: 5150\n"+yamlConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(5150), cfg.OperatorGuild)
}

func TestApplyDefaults_NoOperatorChannel(t *testing.T) {
	cfg := Config{Repos: []Repo{{Name: "cd", Guild: 7}}}
	cfg.ApplyDefaults()
	assert.Zero(t, cfg.OperatorGuild)
}

func TestLoadCUE(t *testing.T) {
	path := writeConfig(t, "plent.cue", cueConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "✅", cfg.AcceptEmoji)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30.0, cfg.Audit.PerMinute)
	require.Len(t, cfg.Repos, 1)
	assert.Equal(t, []string{"Defensive"}, cfg.Repos[0].Channels[0].Labels)
	assert.False(t, cfg.Repos[0].Audit)
}

func TestLoadCUERejectsSchemaViolation(t *testing.T) {
	path := writeConfig(t, "plent.cue", `
repos: [{
	name:       "bad name"
	chief:      1
	deny_emoji: "x"
}]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate CUE")
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "plent.yaml", "repos: []\nbogus: 1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "plent.toml", "")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Repos: []Repo{{
			Name:      "cd",
			Chief:     1,
			DenyEmoji: "x",
			Channels:  []Channel{{ID: 10, Dir: "a"}},
			Forums:    []Forum{{ID: 20, Dir: "f"}},
		}}}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no repos", func(c *Config) { c.Repos = nil }, "at least one repo"},
		{"duplicate repo", func(c *Config) {
			r := c.Repos[0]
			r.Channels, r.Forums = nil, nil
			c.Repos = append(c.Repos, r)
		}, "duplicate repo"},
		{"missing chief", func(c *Config) { c.Repos[0].Chief = 0 }, "chief is required"},
		{"missing deny emoji", func(c *Config) { c.Repos[0].DenyEmoji = "" }, "deny_emoji"},
		{"admin with both", func(c *Config) { c.Repos[0].Admins = []Person{{Role: 1, User: 2}} }, "exactly one"},
		{"reused channel", func(c *Config) { c.Repos[0].Forums[0].ID = 10 }, "already used"},
		{"reused dir", func(c *Config) { c.Repos[0].Forums[0].Dir = "a" }, "reused"},
		{"path dir", func(c *Config) { c.Repos[0].Channels[0].Dir = "../x" }, "invalid"},
		{"labels and strategy", func(c *Config) {
			c.Repos[0].Channels[0].Labels = []string{"A"}
			c.Repos[0].Channels[0].LabelStrategy = registry.UnitFactory
		}, "exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegistry(t *testing.T) {
	cfg, err := Load(writeConfig(t, "plent.yaml", yamlConfig))
	require.NoError(t, err)

	reg, err := cfg.Registry(nil)
	require.NoError(t, err)

	e, ok := reg.Resolve(1100)
	require.True(t, ok)
	assert.Equal(t, "cd", e.Repo.Name)
	assert.Equal(t, "defensive", e.Dir)
	assert.True(t, e.Strict)
	assert.Equal(t, []string{"Defensive"}, e.Labels.Labels)
	assert.True(t, e.Repo.Audit)
	assert.Equal(t, platform.Emoji("<:deny:1192388789952319499>"), e.Repo.DenyEmoji)

	e, ok = reg.Resolve(1101)
	require.True(t, ok)
	assert.Equal(t, registry.UnitFactory, e.Labels.Strategy)

	f, ok := reg.Forum(1200)
	require.True(t, ok)
	assert.Equal(t, registry.LabelsForum, f.Labels.Kind)

	assert.True(t, reg.AllowsSaves(1300))
	assert.True(t, e.Repo.Authorized(platform.Member{User: 332054403160735765}, 0))
	assert.True(t, e.Repo.Authorized(platform.Member{User: 5, Roles: []platform.RoleID{925676016708489227}}, 0))
	assert.False(t, e.Repo.Authorized(platform.Member{User: 5}, 0))
}

func TestRegistryUnknownStrategy(t *testing.T) {
	cfg := &Config{Repos: []Repo{{
		Name: "cd", Chief: 1, DenyEmoji: "x",
		Channels: []Channel{{ID: 10, Dir: "a", LabelStrategy: "nope"}},
	}}}
	_, err := cfg.Registry(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown label strategy")
}

func TestSecrets(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{dir: dir, Audit: Audit{WebhookURL: "https://example.test/hook"}}

	t.Setenv(TokenEnv, "")
	t.Setenv(WebhookEnv, "")

	_, err := cfg.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	url, err := cfg.WebhookURL()
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/hook", url)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "token"), []byte("file-token\n"), 0o600))
	tok, err := cfg.Token()
	require.NoError(t, err)
	assert.Equal(t, "file-token", tok)

	t.Setenv(TokenEnv, "env-token")
	t.Setenv(WebhookEnv, "https://example.test/env")
	tok, err = cfg.Token()
	require.NoError(t, err)
	assert.Equal(t, "env-token", tok)
	url, err = cfg.WebhookURL()
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/env", url)
}
