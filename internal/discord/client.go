// Package discord binds the scheduler collaborators to the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/collab"
)

const (
	// deletedThreadTTL is how long a thread known to be gone short-circuits
	// further calls.
	deletedThreadTTL = 24 * time.Hour
	// deletedThreadCapacity bounds the cache; the oldest entries go first.
	deletedThreadCapacity = 10_000
)

// Session is the subset of *discordgo.Session the client uses.
type Session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Client implements collab.Messaging and collab.Moderation.
type Client struct {
	session     Session
	mutedRoleID string
	deleted     *ttlcache.Cache[int64, struct{}]
	stopOnce    sync.Once
	logger      *zap.Logger
}

var (
	_ collab.Messaging  = (*Client)(nil)
	_ collab.Moderation = (*Client)(nil)
)

// New opens a REST-only bot session. The gateway is not connected.
func New(token, mutedRoleID string, logger *zap.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.StateEnabled = false
	return NewWithSession(session, mutedRoleID, logger), nil
}

// NewWithSession wraps an existing session. Call Close to stop the
// background expiry of the deleted-thread cache.
func NewWithSession(session Session, mutedRoleID string, logger *zap.Logger) *Client {
	return newClient(session, mutedRoleID, logger, deletedThreadTTL)
}

func newClient(session Session, mutedRoleID string, logger *zap.Logger, ttl time.Duration) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	deleted := ttlcache.New(
		ttlcache.WithTTL[int64, struct{}](ttl),
		ttlcache.WithCapacity[int64, struct{}](deletedThreadCapacity),
	)
	go deleted.Start()
	return &Client{
		session:     session,
		mutedRoleID: mutedRoleID,
		deleted:     deleted,
		logger:      logger.Named("discord"),
	}
}

// Close stops the cache expiry loop. It is safe to call more than once.
func (c *Client) Close() {
	c.stopOnce.Do(c.deleted.Stop)
}

// Notify posts text to a thread.
func (c *Client) Notify(ctx context.Context, threadID int64, text string) error {
	if c.isDeleted(threadID) {
		return collab.ErrNotFound
	}
	_, err := c.session.ChannelMessageSend(snowflake(threadID), text, discordgo.WithContext(ctx))
	return c.mapThreadError(threadID, err)
}

// ArchiveThread archives and locks a thread.
func (c *Client) ArchiveThread(ctx context.Context, threadID int64) error {
	if c.isDeleted(threadID) {
		return collab.ErrNotFound
	}
	archived, locked := true, true
	_, err := c.session.ChannelEdit(snowflake(threadID), &discordgo.ChannelEdit{
		Archived: &archived,
		Locked:   &locked,
	}, discordgo.WithContext(ctx))
	return c.mapThreadError(threadID, err)
}

// DeleteThread deletes a thread. A thread that is already gone reports
// collab.ErrNotFound.
func (c *Client) DeleteThread(ctx context.Context, threadID int64) error {
	if c.isDeleted(threadID) {
		return collab.ErrNotFound
	}
	_, err := c.session.ChannelDelete(snowflake(threadID), discordgo.WithContext(ctx))
	if err == nil {
		c.deleted.Set(threadID, struct{}{}, ttlcache.DefaultTTL)
		return nil
	}
	return c.mapThreadError(threadID, err)
}

// ConfineUser adds the muted role to a member.
func (c *Client) ConfineUser(ctx context.Context, guildID, userID int64) error {
	err := c.session.GuildMemberRoleAdd(snowflake(guildID), snowflake(userID), c.mutedRoleID, discordgo.WithContext(ctx))
	return mapMemberError(guildID, userID, err)
}

// ReleaseUser removes the muted role from a member.
func (c *Client) ReleaseUser(ctx context.Context, guildID, userID int64) error {
	err := c.session.GuildMemberRoleRemove(snowflake(guildID), snowflake(userID), c.mutedRoleID, discordgo.WithContext(ctx))
	return mapMemberError(guildID, userID, err)
}

// MutedRoleState reports whether the member still carries the muted role,
// and if not, whether the guild still has the role.
func (c *Client) MutedRoleState(ctx context.Context, guildID, userID int64) (collab.RoleState, error) {
	member, err := c.session.GuildMember(snowflake(guildID), snowflake(userID), discordgo.WithContext(ctx))
	if err != nil {
		return collab.RoleHeld, mapMemberError(guildID, userID, err)
	}
	if slices.Contains(member.Roles, c.mutedRoleID) {
		return collab.RoleHeld, nil
	}

	roles, err := c.session.GuildRoles(snowflake(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return collab.RoleHeld, mapMemberError(guildID, userID, err)
	}
	for _, role := range roles {
		if role.ID == c.mutedRoleID {
			return collab.RoleRemoved, nil
		}
	}
	return collab.RoleMissing, nil
}

func (c *Client) isDeleted(threadID int64) bool {
	return c.deleted.Has(threadID)
}

func (c *Client) mapThreadError(threadID int64, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		c.deleted.Set(threadID, struct{}{}, ttlcache.DefaultTTL)
		c.logger.Debug("thread is gone", zap.Int64("thread_id", threadID))
		return fmt.Errorf("thread %d: %w", threadID, collab.ErrNotFound)
	}
	return err
}

func mapMemberError(guildID, userID int64, err error) error {
	if err == nil {
		return nil
	}
	if restCode(err) == discordgo.ErrCodeUnknownGuild {
		return fmt.Errorf("guild %d: %w", guildID, collab.ErrGuildNotFound)
	}
	if isNotFound(err) {
		return fmt.Errorf("member %d in guild %d: %w", userID, guildID, collab.ErrMemberNotFound)
	}
	return err
}

func restCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code
	}
	return 0
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownGuild,
			discordgo.ErrCodeUnknownMember,
			discordgo.ErrCodeUnknownUser:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func snowflake(id int64) string {
	return strconv.FormatInt(id, 10)
}
