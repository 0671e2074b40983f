package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/plent/internal/discord"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/router"
)

// Changed reports how many schematics a maintenance command touched.
type Changed struct {
	Repo    string `json:"repo,omitempty"`
	Channel string `json:"channel,omitempty"`
	Count   int    `json:"count"`
}

// WriteText implements textWriter.
func (c Changed) WriteText(w io.Writer) error {
	where := c.Repo
	if c.Channel != "" {
		where = "channel " + c.Channel
	}
	_, err := fmt.Fprintf(w, "%s: %d schematics changed\n", where, c.Count)
	return err
}

// NewRetagCommand creates the retag command.
func NewRetagCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retag <repo>",
		Short: "Reapply configured labels to stored schematics",
		Long: `Rewrite the labels of every schematic stored from the repository's fixed
channels using the current configuration, in a single commit. Run after
changing a channel's labels or label strategy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetag(rootOpts, args[0], cmd)
		},
	}
}

func runRetag(opts *RootOptions, repoName string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.repo(repoName); err != nil {
		return err
	}

	rt := router.New(router.Config{BotName: a.cfg.BotName}, router.Deps{
		Registry: a.reg,
		Repos:    a.repos,
		Codec:    a.codec,
		Store:    a.store,
	})
	n, err := rt.Retag(ctx, repoName)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRepo, "retag failed", err)
	}
	return f.Success(Changed{Repo: repoName, Count: n})
}

// ScourOptions holds flags for the scour command.
type ScourOptions struct {
	*RootOptions
	As uint64
}

// NewScourCommand creates the scour command.
func NewScourCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScourOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "scour <channel id>",
		Short: "Import schematics already posted in a channel",
		Long: `Walk a mapped channel's message history and store every schematic that is
not stored yet, then push once. Acts as --as, which must be the repository
chief or the super-admin (the default).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScour(opts, args[0], cmd)
		},
	}
	cmd.Flags().Uint64Var(&opts.As, "as", 0, "acting user id (defaults to super_admin)")
	return cmd
}

func runScour(opts *ScourOptions, arg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	channel, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeArgument, "invalid channel id", err)
	}
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	actor := opts.As
	if actor == 0 {
		actor = a.cfg.SuperAdmin
	}
	token, err := a.cfg.Token()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read token", err)
	}

	rt := router.New(router.Config{
		BotName:     a.cfg.BotName,
		SuperAdmin:  platform.UserID(a.cfg.SuperAdmin),
		AcceptEmoji: platform.Emoji(a.cfg.AcceptEmoji),
	}, router.Deps{
		Client:   discord.NewClient(token),
		Registry: a.reg,
		Repos:    a.repos,
		Codec:    a.codec,
		Store:    a.store,
	})
	n, err := rt.Scour(ctx, platform.ChannelID(channel), platform.Member{User: platform.UserID(actor)})
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRepo, "scour failed", err)
	}
	return f.Success(Changed{Channel: arg, Count: n})
}
