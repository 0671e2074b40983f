package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/platform"
)

// source is one place an artifact may be carried: a forwarded snapshot or
// the message body.
type source struct {
	content     string
	attachments []platform.Attachment
}

func sources(m platform.Message) []source {
	out := make([]source, 0, len(m.Snapshots)+1)
	for _, s := range m.Snapshots {
		out = append(out, source{content: s.Content, attachments: s.Attachments})
	}
	return append(out, source{content: m.Content, attachments: m.Attachments})
}

// extract finds the first artifact carried by m. Snapshots are tried
// before the body; within a source the text comes before attachments,
// which are tried in order. Undecodable attachments are skipped.
//
// When nothing decodes, the returned error is the first decode failure
// seen, or artifact.ErrNoArtifact when nothing looked like an artifact.
func (r *Router) extract(ctx context.Context, m platform.Message) (*artifact.Artifact, error) {
	var first error
	note := func(err error) {
		if first == nil && artifact.IsDecodeError(err) {
			first = err
		}
	}

	ext := "." + r.deps.Codec.Ext()
	for _, src := range sources(m) {
		a, err := artifact.ParseText(r.deps.Codec, src.content)
		if err == nil {
			return a, nil
		}
		note(err)

		for _, att := range src.attachments {
			if !strings.HasSuffix(strings.ToLower(att.Filename), ext) {
				continue
			}
			data, err := r.deps.Client.Download(ctx, att)
			if err != nil {
				slog.Warn("attachment download failed",
					"file", att.Filename,
					"message_id", m.Ref.Message.String(),
					"error", err)
				continue
			}
			a, err := r.deps.Codec.Decode(data)
			if err == nil {
				return a, nil
			}
			slog.Debug("attachment skipped", "file", att.Filename, "error", err)
			note(err)
		}
	}
	if first != nil {
		return nil, first
	}
	return nil, artifact.ErrNoArtifact
}

// inspectSaves answers save-file attachments in channels that allow them:
// a summary for readable saves, a diagnostic for malformed ones. Only the
// first save attachment is answered.
func (r *Router) inspectSaves(ctx context.Context, m platform.Message) error {
	suffix := "." + artifact.SaveExt
	for _, att := range m.Attachments {
		if !strings.HasSuffix(strings.ToLower(att.Filename), suffix) {
			continue
		}
		data, err := r.deps.Client.Download(ctx, att)
		if err != nil {
			return &HandlerError{Class: PlatformFailure, Op: "download save", Err: err}
		}
		text := saveSummary(att.Filename, m.Author.DisplayName(), data)
		if _, err := r.deps.Client.Reply(ctx, m.Ref, platform.Reply{Content: text}); err != nil {
			return &HandlerError{Class: PlatformFailure, Op: "post save reply", Err: err}
		}
		return nil
	}
	return nil
}

func saveSummary(file, requester string, data []byte) string {
	info, err := artifact.InspectSave(data)
	if err != nil {
		return artifact.SaveDiagnostic(file, err)
	}
	name := artifact.StripColors(info.Name())
	if name == "" {
		name = file
	}
	w, h := info.Size()
	return fmt.Sprintf("**%s** (%d×%d), requested by %s", name, w, h, requester)
}

// replyText renders the caption posted with an artifact preview.
func replyText(a *artifact.Artifact) string {
	var b strings.Builder
	b.WriteString("**")
	b.WriteString(displayName(a))
	b.WriteString("**")
	if d := strings.TrimSpace(artifact.StripColors(a.Description())); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
	}
	if labels := a.Labels(); len(labels) > 0 {
		b.WriteString("\ntags: ")
		b.WriteString(strings.Join(labels, " | "))
	}
	return b.String()
}

// displayName is the artifact name without colour markup.
func displayName(a *artifact.Artifact) string {
	name := strings.TrimSpace(artifact.StripColors(a.Name()))
	if name == "" {
		return "unnamed"
	}
	return name
}

// threadName caps a thread title at the platform's 100 character limit.
func threadName(a *artifact.Artifact) string {
	name := []rune(displayName(a))
	if len(name) > 100 {
		name = name[:100]
	}
	return string(name)
}

// ignored reports whether a message never reaches extraction: commands
// and messages from bots, including our own.
func (r *Router) ignored(m platform.Message) bool {
	return strings.HasPrefix(m.Content, "!") ||
		strings.HasPrefix(m.Content, commandPrefix) ||
		m.Author.Bot ||
		m.Author.User == r.deps.Client.Self()
}

const commandPrefix = "}"

var errNoRepo = errors.New("repository not opened")
