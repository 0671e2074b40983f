package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/roach88/plent/internal/platform"
)

// APIBase is the REST endpoint root.
const APIBase = "https://discord.com/api/v10"

// Client is a platform.Client backed by the Discord REST API.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter

	mu      sync.RWMutex
	self    platform.UserID
	parents map[platform.ChannelID]platform.ChannelID
	tags    map[platform.ChannelID]map[snowflake]string // forum -> tag id -> name
}

var _ platform.Client = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another API root. Used by tests.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.base = base }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient returns a REST client authenticating with a bot token.
// Requests are limited to the global rate of 50 per second.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		base:    APIBase,
		token:   token,
		http:    http.DefaultClient,
		limiter: rate.NewLimiter(rate.Limit(50), 50),
		parents: make(map[platform.ChannelID]platform.ChannelID),
		tags:    make(map[platform.ChannelID]map[snowflake]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx REST response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord %s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/roach88/plent, 1)")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("discord %s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if in == nil {
		return c.do(ctx, method, path, nil, "", out)
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, bytes.NewReader(raw), "application/json", out)
}

type messageReference struct {
	MessageID snowflake `json:"message_id"`
	// Replies to deleted messages post anyway.
	FailIfNotExists bool `json:"fail_if_not_exists"`
}

type outgoing struct {
	Content     string            `json:"content,omitempty"`
	Reference   *messageReference `json:"message_reference,omitempty"`
	Attachments []outAttachment   `json:"attachments,omitempty"`
}

type outAttachment struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

func (c *Client) post(ctx context.Context, guild platform.GuildID, channel platform.ChannelID, r platform.Reply, ref *messageReference) (platform.MessageRef, error) {
	msg := outgoing{Content: r.Content, Reference: ref}
	path := "/channels/" + channel.String() + "/messages"

	var created wireMessage
	if len(r.Files) == 0 {
		if err := c.doJSON(ctx, http.MethodPost, path, msg, &created); err != nil {
			return platform.MessageRef{}, err
		}
	} else {
		for i, f := range r.Files {
			msg.Attachments = append(msg.Attachments, outAttachment{ID: i, Filename: f.Name})
		}
		body, contentType, err := multipartBody(msg, r.Files)
		if err != nil {
			return platform.MessageRef{}, err
		}
		if err := c.do(ctx, http.MethodPost, path, body, contentType, &created); err != nil {
			return platform.MessageRef{}, err
		}
	}
	return platform.MessageRef{Guild: guild, Channel: channel, Message: platform.MessageID(created.ID)}, nil
}

func multipartBody(msg outgoing, files []platform.File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("payload_json", string(raw)); err != nil {
		return nil, "", err
	}
	for i, f := range files {
		part, err := w.CreateFormFile("files["+strconv.Itoa(i)+"]", f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Reply posts r as a reply to a message.
func (c *Client) Reply(ctx context.Context, to platform.MessageRef, r platform.Reply) (platform.MessageRef, error) {
	return c.post(ctx, to.Guild, to.Channel, r, &messageReference{MessageID: snowflake(to.Message)})
}

// Send posts r to a channel.
func (c *Client) Send(ctx context.Context, guild platform.GuildID, channel platform.ChannelID, r platform.Reply) (platform.MessageRef, error) {
	return c.post(ctx, guild, channel, r, nil)
}

// Delete deletes a message.
func (c *Client) Delete(ctx context.Context, ref platform.MessageRef) error {
	return c.doJSON(ctx, http.MethodDelete, "/channels/"+ref.Channel.String()+"/messages/"+ref.Message.String(), nil, nil)
}

func reactionPath(ref platform.MessageRef, e platform.Emoji) string {
	return "/channels/" + ref.Channel.String() + "/messages/" + ref.Message.String() +
		"/reactions/" + url.PathEscape(string(e)) + "/@me"
}

// React adds the bot's reaction.
func (c *Client) React(ctx context.Context, ref platform.MessageRef, e platform.Emoji) error {
	return c.doJSON(ctx, http.MethodPut, reactionPath(ref, e), nil, nil)
}

// Unreact removes the bot's reaction.
func (c *Client) Unreact(ctx context.Context, ref platform.MessageRef, e platform.Emoji) error {
	return c.doJSON(ctx, http.MethodDelete, reactionPath(ref, e), nil, nil)
}

// DisplayName returns the member's guild nickname, falling back to the
// global display name and then the username.
func (c *Client) DisplayName(ctx context.Context, guild platform.GuildID, user platform.UserID) (string, error) {
	var m wireMember
	path := "/guilds/" + strconv.FormatUint(uint64(guild), 10) + "/members/" + user.String()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &m); err != nil {
		return "", err
	}
	if m.Nick != "" {
		return m.Nick, nil
	}
	if m.User == nil {
		return "", fmt.Errorf("member %s has no user", user)
	}
	return m.User.name(), nil
}

// Download fetches an attachment from the CDN.
func (c *Client) Download(ctx context.Context, a platform.Attachment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", a.Filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", a.Filename, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// StartThread opens a thread on a message, archived after a day of
// inactivity.
func (c *Client) StartThread(ctx context.Context, from platform.MessageRef, name string) (platform.ChannelID, error) {
	var ch wireChannel
	body := map[string]any{"name": name, "auto_archive_duration": 1440}
	path := "/channels/" + from.Channel.String() + "/messages/" + from.Message.String() + "/threads"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &ch); err != nil {
		return 0, err
	}
	c.rememberThread(platform.ChannelID(ch.ID), from.Channel)
	return platform.ChannelID(ch.ID), nil
}

// History returns up to limit messages older than before, newest first.
func (c *Client) History(ctx context.Context, channel platform.ChannelID, before platform.MessageID, limit int) ([]platform.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != 0 {
		q.Set("before", before.String())
	}
	var msgs []wireMessage
	if err := c.doJSON(ctx, http.MethodGet, "/channels/"+channel.String()+"/messages?"+q.Encode(), nil, &msgs); err != nil {
		return nil, err
	}
	out := make([]platform.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.toPlatform()
	}
	return out, nil
}

// Parent returns the parent of a thread, from the cache filled by the
// gateway or from the API.
func (c *Client) Parent(ctx context.Context, channel platform.ChannelID) (platform.ChannelID, bool, error) {
	c.mu.RLock()
	p, ok := c.parents[channel]
	c.mu.RUnlock()
	if ok {
		return p, p != 0, nil
	}

	var ch wireChannel
	if err := c.doJSON(ctx, http.MethodGet, "/channels/"+channel.String(), nil, &ch); err != nil {
		return 0, false, err
	}
	parent := platform.ChannelID(0)
	if ch.isThread() {
		parent = platform.ChannelID(ch.ParentID)
	}
	c.rememberThread(channel, parent)
	return parent, parent != 0, nil
}

// Self returns the bot's user id once the gateway is ready.
func (c *Client) Self() platform.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

func (c *Client) setSelf(id platform.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.self = id
}

// rememberThread caches a channel's parent; zero marks a non-thread.
func (c *Client) rememberThread(id, parent platform.ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parents[id] = parent
}

func (c *Client) forgetThread(id platform.ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.parents, id)
}

// rememberTags caches a forum's tag names.
func (c *Client) rememberTags(forum platform.ChannelID, tags []wireTag) {
	if len(tags) == 0 {
		return
	}
	names := make(map[snowflake]string, len(tags))
	for _, t := range tags {
		names[t.ID] = t.Name
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[forum] = names
}

// tagNames resolves applied tag ids against the forum's tags. Unknown
// ids are dropped.
func (c *Client) tagNames(forum platform.ChannelID, ids []snowflake) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := c.tags[forum]
	var out []string
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		}
	}
	return out
}
