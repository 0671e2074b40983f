package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/dedup"
	"github.com/roach88/plent/internal/ownership"
	"github.com/roach88/plent/internal/store"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Match is one search result.
type Match struct {
	Repo  string  `json:"repo"`
	Dir   string  `json:"dir"`
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score,omitempty"`
	Link  string  `json:"link,omitempty"`
}

func matchOf(h dedup.Hit) Match {
	m := Match{Repo: h.Repo, Dir: h.Dir, ID: h.ID.Hex(), Name: h.Name, Score: h.Score}
	if h.Located {
		m.Link = h.Origin.Link()
	}
	return m
}

// Matches is a list of search results.
type Matches []Match

// WriteText implements textWriter.
func (ms Matches) WriteText(w io.Writer) error {
	if len(ms) == 0 {
		_, err := fmt.Fprintln(w, "not found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, m := range ms {
		link := m.Link
		if link == "" {
			link = m.Repo + "/" + m.Dir + "/" + m.ID
		}
		if m.Score > 0 {
			fmt.Fprintf(tw, "%s\t%.2f\t%s\n", artifact.StripColors(m.Name), m.Score, link)
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", artifact.StripColors(m.Name), link)
		}
	}
	return tw.Flush()
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find <name>",
		Short: "Find stored schematics by name",
		Long: `Rank stored schematics by name similarity to the query and print up to
five matches scoring at least 0.5, best first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(rootOpts, strings.Join(args, " "), cmd)
		},
	}
}

func runFind(opts *RootOptions, query string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	hits, err := a.index().Fuzzy(ctx, query)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRepo, "search failed", err)
	}
	out := Matches{}
	for _, h := range hits {
		out = append(out, matchOf(h))
	}
	return f.Success(out)
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <file|base64>",
		Short: "Look for a stored copy of a schematic",
		Long: `Decode a schematic given as a .msch file path or as pasted base64 text and
report the first stored schematic with the same blocks, size and tags.
Labels are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(rootOpts, args[0], cmd)
		},
	}
}

func runSearch(opts *RootOptions, arg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := decodeArg(a.codec, arg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDecode, "cannot decode schematic", err)
	}
	hit, ok, err := a.index().Exact(ctx, q)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRepo, "search failed", err)
	}
	out := Matches{}
	if ok {
		out = append(out, matchOf(hit))
	}
	return f.Success(out)
}

// decodeArg reads arg as a file when a regular file exists at that
// path, and as base64 text otherwise.
func decodeArg(c artifact.Codec, arg string) (*artifact.Artifact, error) {
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, err
		}
		return c.Decode(data)
	}
	return artifact.ParseText(c, arg)
}

// Attribution is the blame result.
type Attribution struct {
	Repo  string `json:"repo"`
	Dir   string `json:"dir"`
	ID    string `json:"id"`
	Owner string `json:"owner"`
}

// WriteText implements textWriter.
func (b Attribution) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s/%s/%s.msch: %s\n", b.Repo, b.Dir, b.ID, b.Owner)
	return err
}

// NewBlameCommand creates the blame command.
func NewBlameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "blame <hex id>",
		Short: "Show who submitted a stored schematic",
		Long: `Print the submitter of a stored schematic: the ownership index when it has
an entry, otherwise the author recorded in version-control history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlame(rootOpts, args[0], cmd)
		},
	}
}

func runBlame(opts *RootOptions, hex string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	id, err := artifact.ParseHex(strings.TrimSuffix(hex, ".msch"))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeArgument, "invalid id", err)
	}
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	r, file, err := a.find(id)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRepo, id.Hex()+" is not stored", err)
	}
	owner, err := r.Attributor(ctx, file.Dir, id)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeRepo, "attribution failed", err)
	}
	return f.Success(Attribution{Repo: r.Name(), Dir: file.Dir, ID: id.Hex(), Owner: owner})
}

// Standings is the leaderboard result.
type Standings []ownership.Standing

// WriteText implements textWriter.
func (s Standings) WriteText(w io.Writer) error {
	if len(s) == 0 {
		_, err := fmt.Fprintln(w, "no submissions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for i, st := range s {
		fmt.Fprintf(tw, "%d.\t%d\t %s\t\n", i+1, st.Count, st.Name)
	}
	return tw.Flush()
}

// LeaderboardOptions holds flags for the lb command.
type LeaderboardOptions struct {
	*RootOptions
	Top     int
	Exclude []string
}

// NewLeaderboardCommand creates the lb command.
func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LeaderboardOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "lb",
		Short: "Rank submitters across all repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(opts, cmd)
		},
	}
	cmd.Flags().IntVarP(&opts.Top, "top", "n", 10, "number of rows")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "user ids to leave out")
	return cmd
}

func runLeaderboard(opts *LeaderboardOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	skip := make(map[uint64]bool, len(opts.Exclude))
	for _, s := range opts.Exclude {
		id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeArgument, fmt.Sprintf("invalid user id %q", s), err)
		}
		skip[id] = true
	}

	a, err := openApp(commandContext(cmd), opts.RootOptions, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	indexes := make([]*ownership.Index, len(a.repos))
	for i, r := range a.repos {
		indexes[i] = r.Ownership()
	}
	rows := ownership.Leaderboard(indexes, opts.Top, func(user uint64) bool { return skip[user] })
	return f.Success(Standings(rows))
}

// Journal is the history result.
type Journal []JournalEntry

// JournalEntry is one journaled change.
type JournalEntry struct {
	Seq           int64     `json:"seq"`
	Clock         int64     `json:"clock"`
	Kind          string    `json:"kind"`
	ArtifactID    string    `json:"artifact_id"`
	Actor         string    `json:"actor"`
	Cause         string    `json:"cause,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// WriteText implements textWriter.
func (j Journal) WriteText(w io.Writer) error {
	if len(j) == 0 {
		_, err := fmt.Fprintln(w, "no changes recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range j {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.RecordedAt.UTC().Format(time.DateTime), e.Kind, e.ArtifactID, e.Actor, e.Cause)
	}
	return tw.Flush()
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit    int
	Artifact string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "history <repo>",
		Short: "Show the journal of repository changes",
		Long: `Print the changes the bot made to a repository, oldest first, with the
actor, the cause and the correlation id of the event that caused them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "most recent changes to show (0 for all)")
	cmd.Flags().StringVar(&opts.Artifact, "artifact", "", "only changes to this hex id")
	return cmd
}

func runHistory(opts *HistoryOptions, repoName string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.repo(repoName); err != nil {
		return err
	}

	var actions []store.Action
	if opts.Artifact != "" {
		id, perr := artifact.ParseHex(opts.Artifact)
		if perr != nil {
			return f.Fail(ExitCommandError, ErrCodeArgument, "invalid id", perr)
		}
		actions, err = a.store.ArtifactHistory(ctx, repoName, id.Hex())
	} else {
		actions, err = a.store.History(ctx, repoName, opts.Limit)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStore, "read journal", err)
	}

	out := Journal{}
	for _, act := range actions {
		out = append(out, JournalEntry{
			Seq:           act.Seq,
			Clock:         act.Clock,
			Kind:          string(act.Kind),
			ArtifactID:    act.ArtifactID,
			Actor:         act.Actor,
			Cause:         act.Cause,
			CorrelationID: act.CorrelationID,
			RecordedAt:    act.RecordedAt,
		})
	}
	return f.Success(out)
}
