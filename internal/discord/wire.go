// Package discord connects the router to Discord: a gateway session that
// turns dispatches into platform events, and a REST client implementing
// platform.Client.
package discord

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/plent/internal/platform"
)

// snowflake is a Discord id, sent as a decimal string.
type snowflake uint64

func (s *snowflake) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	if str == "" || str == "null" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return err
	}
	*s = snowflake(v)
	return nil
}

func (s snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(s), 10) + `"`), nil
}

type wireUser struct {
	ID         snowflake `json:"id"`
	Username   string    `json:"username"`
	GlobalName string    `json:"global_name"`
	Bot        bool      `json:"bot"`
	Avatar     string    `json:"avatar"`
}

func (u wireUser) name() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func (u wireUser) avatarURL() string {
	if u.Avatar == "" {
		return ""
	}
	return "https://cdn.discordapp.com/avatars/" + strconv.FormatUint(uint64(u.ID), 10) + "/" + u.Avatar + ".png"
}

type wireMember struct {
	User  *wireUser   `json:"user"`
	Nick  string      `json:"nick"`
	Roles []snowflake `json:"roles"`
}

func member(u wireUser, m *wireMember) platform.Member {
	out := platform.Member{
		User:   platform.UserID(u.ID),
		Name:   u.name(),
		Bot:    u.Bot,
		Avatar: u.avatarURL(),
	}
	if m != nil {
		out.Nick = m.Nick
		for _, r := range m.Roles {
			out.Roles = append(out.Roles, platform.RoleID(r))
		}
	}
	return out
}

type wireAttachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int    `json:"size"`
}

func attachments(in []wireAttachment) []platform.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]platform.Attachment, len(in))
	for i, a := range in {
		out[i] = platform.Attachment{Filename: a.Filename, URL: a.URL, Size: a.Size}
	}
	return out
}

type wireSnapshot struct {
	Message struct {
		Content     string           `json:"content"`
		Attachments []wireAttachment `json:"attachments"`
	} `json:"message"`
}

type wireMessage struct {
	ID          snowflake        `json:"id"`
	ChannelID   snowflake        `json:"channel_id"`
	GuildID     snowflake        `json:"guild_id"`
	Author      *wireUser        `json:"author"`
	Member      *wireMember      `json:"member"`
	Content     *string          `json:"content"`
	Attachments []wireAttachment `json:"attachments"`
	Snapshots   []wireSnapshot   `json:"message_snapshots"`
	Timestamp   time.Time        `json:"timestamp"`
}

func (m wireMessage) ref() platform.MessageRef {
	return platform.MessageRef{
		Guild:   platform.GuildID(m.GuildID),
		Channel: platform.ChannelID(m.ChannelID),
		Message: platform.MessageID(m.ID),
	}
}

func (m wireMessage) toPlatform() platform.Message {
	out := platform.Message{
		Ref:         m.ref(),
		Attachments: attachments(m.Attachments),
		Timestamp:   m.Timestamp,
	}
	if m.Content != nil {
		out.Content = *m.Content
	}
	if m.Author != nil {
		out.Author = member(*m.Author, m.Member)
	}
	for _, s := range m.Snapshots {
		out.Snapshots = append(out.Snapshots, platform.Snapshot{
			Content:     s.Message.Content,
			Attachments: attachments(s.Message.Attachments),
		})
	}
	return out
}

type wireEmoji struct {
	ID   snowflake `json:"id"`
	Name string    `json:"name"`
}

// emoji renders the platform form: the unicode character, or "name:id"
// for custom emoji.
func (e wireEmoji) emoji() platform.Emoji {
	if e.ID == 0 {
		return platform.Emoji(e.Name)
	}
	return platform.Emoji(e.Name + ":" + strconv.FormatUint(uint64(e.ID), 10))
}

type wireReaction struct {
	UserID    snowflake   `json:"user_id"`
	ChannelID snowflake   `json:"channel_id"`
	MessageID snowflake   `json:"message_id"`
	GuildID   snowflake   `json:"guild_id"`
	Member    *wireMember `json:"member"`
	Emoji     wireEmoji   `json:"emoji"`
}

type wireTag struct {
	ID   snowflake `json:"id"`
	Name string    `json:"name"`
}

type wireChannel struct {
	ID            snowflake   `json:"id"`
	Type          int         `json:"type"`
	GuildID       snowflake   `json:"guild_id"`
	ParentID      snowflake   `json:"parent_id"`
	Name          string      `json:"name"`
	AppliedTags   []snowflake `json:"applied_tags"`
	AvailableTags []wireTag   `json:"available_tags"`
}

// Thread channel types.
const (
	channelAnnouncementThread = 10
	channelPublicThread       = 11
	channelPrivateThread      = 12
)

func (c wireChannel) isThread() bool {
	switch c.Type {
	case channelAnnouncementThread, channelPublicThread, channelPrivateThread:
		return true
	}
	return false
}

type wireGuild struct {
	ID       snowflake     `json:"id"`
	Channels []wireChannel `json:"channels"`
	Threads  []wireChannel `json:"threads"`
}

type wireReady struct {
	User             wireUser `json:"user"`
	SessionID        string   `json:"session_id"`
	ResumeGatewayURL string   `json:"resume_gateway_url"`
}

// payload is a gateway frame.
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}
