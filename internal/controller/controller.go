// Package controller receives transport events and the prefixed admin
// command set, and routes them into the session manager and the store.
// Every Settings, Questions or EvaluationPrompt mutation is permission
// checked here; the rest of the core never sees unauthorised writes.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gatekeeper/internal/models"
	"gatekeeper/internal/prompts"
	"gatekeeper/internal/selection"
	"gatekeeper/internal/session"
	"gatekeeper/internal/store"
	"gatekeeper/internal/transport"
)

// Controller is the top-level dispatcher.
type Controller struct {
	prefix    string
	ownerID   string
	manager   *session.Manager
	store     *store.Store
	matcher   *selection.Matcher
	transport transport.Transport
	logger    *zap.Logger
}

func New(prefix, ownerID string, manager *session.Manager, st *store.Store, matcher *selection.Matcher, tr transport.Transport, logger *zap.Logger) *Controller {
	if prefix == "" {
		prefix = "!vet"
	}
	return &Controller{
		prefix:    prefix,
		ownerID:   ownerID,
		manager:   manager,
		store:     st,
		matcher:   matcher,
		transport: tr,
		logger:    logger,
	}
}

// HandleMessage routes one inbound message: command, quoted menu reply,
// or plain interview ingest.
func (c *Controller) HandleMessage(ctx context.Context, ev transport.MessageEvent) {
	text := strings.TrimSpace(ev.Text)

	if strings.HasPrefix(strings.ToLower(text), c.prefix) {
		rest := strings.TrimSpace(text[len(c.prefix):])
		c.dispatchCommand(ctx, ev, rest)
		return
	}

	if ev.Quoted != nil {
		if d, ok := c.matcher.Match(ctx, ev.Quoted.ID, text); ok {
			if c.dispatchSelection(ctx, ev, *d) {
				return
			}
		}
	}

	if _, err := c.manager.Ingest(ctx, ev); err != nil {
		c.logger.Error("ingest failed",
			zap.String("chat", ev.ChatID), zap.String("user", ev.UserID), zap.Error(err))
	}
}

// HandleMembership reacts to joins and leaves in a vetting chat.
func (c *Controller) HandleMembership(ctx context.Context, ev transport.MembershipEvent) {
	switch ev.Change {
	case "joined":
		outcome, err := c.manager.Start(ctx, ev.ChatID, ev.UserID, ev.Name)
		if err != nil {
			c.logger.Error("start on join failed", zap.String("user", ev.UserID), zap.Error(err))
			return
		}
		if outcome == session.StartTooManyAttempts {
			c.reply(ctx, ev.ChatID, "No interview attempts remain for this candidate.")
		}
	case "left":
		c.manager.HandleLeave(ctx, ev.ChatID, ev.UserID)
	}
}

func (c *Controller) isOperator(ctx context.Context, chatID, userID string) bool {
	if userID == c.ownerID {
		return true
	}
	admin, err := c.transport.IsChatAdmin(ctx, chatID, userID)
	if err != nil {
		c.logger.Warn("admin lookup failed", zap.String("user", userID), zap.Error(err))
		return false
	}
	return admin
}

func (c *Controller) reply(ctx context.Context, chatID, text string) string {
	id, err := c.transport.Send(ctx, chatID, text)
	if err != nil {
		c.logger.Warn("reply failed", zap.String("chat", chatID), zap.Error(err))
	}
	return id
}

func (c *Controller) dispatchCommand(ctx context.Context, ev transport.MessageEvent, rest string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		c.reply(ctx, ev.ChatID, c.helpText(false))
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "start", "retry":
		c.cmdStart(ctx, ev)
	case "status":
		c.cmdStatus(ctx, ev)
	case "stats":
		c.cmdStats(ctx, ev)
	case "help":
		c.reply(ctx, ev.ChatID, c.helpText(c.isOperator(ctx, ev.ChatID, ev.UserID)))
	case "skip", "end", "reset", "approve", "reject":
		c.cmdAdminAction(ctx, ev, session.AdminAction(cmd), args)
	case "enable", "disable", "threshold", "retries", "autokick", "link", "ai":
		c.cmdSettings(ctx, ev, cmd, args)
	case "questions":
		c.cmdQuestions(ctx, ev, args)
	case "prompt":
		c.cmdPrompt(ctx, ev, args)
	default:
		c.reply(ctx, ev.ChatID, "Unknown command. "+c.helpText(false))
	}
}

func (c *Controller) cmdStart(ctx context.Context, ev transport.MessageEvent) {
	outcome, err := c.manager.Start(ctx, ev.ChatID, ev.UserID, ev.Name)
	if err != nil {
		c.logger.Error("start failed", zap.Error(err))
		c.reply(ctx, ev.ChatID, "Something went wrong starting the interview, try again shortly.")
		return
	}
	switch outcome {
	case session.StartAlreadyActive:
		c.reply(ctx, ev.ChatID, "You already have an interview in progress. Just answer the last question.")
	case session.StartTooManyAttempts:
		c.reply(ctx, ev.ChatID, "No interview attempts remain.")
	case session.StartDisabled:
		c.reply(ctx, ev.ChatID, "Interviews are not enabled in this chat.")
	}
}

func (c *Controller) cmdStatus(ctx context.Context, ev transport.MessageEvent) {
	sess, err := c.manager.Status(ctx, ev.ChatID, ev.UserID)
	if err != nil {
		c.logger.Error("status failed", zap.Error(err))
		return
	}
	if sess == nil {
		c.reply(ctx, ev.ChatID, "No interview in progress.")
		return
	}
	c.reply(ctx, ev.ChatID, fmt.Sprintf(
		"Interview attempt %d: %s, question %d, %d answer(s) recorded.",
		sess.Attempt, sess.State, sess.Cursor+1, len(sess.Answers)))
}

func (c *Controller) cmdStats(ctx context.Context, ev transport.MessageEvent) {
	st, err := c.store.Stats.Get(ctx, ev.ChatID)
	if err != nil {
		c.logger.Error("stats load failed", zap.Error(err))
		return
	}
	c.reply(ctx, ev.ChatID, fmt.Sprintf(
		"Interviews: %d total, %d approved, %d rejected, %d pending review, %d timed out, %d auto-removed. Avg score %.1f%%, avg duration %s.",
		st.Total, st.Approved, st.Rejected, st.PendingReview, st.FailedTimeout, st.AutoRemoved,
		st.AvgScore(), st.AvgDuration().Round(time.Second)))
}

func (c *Controller) cmdAdminAction(ctx context.Context, ev transport.MessageEvent, action session.AdminAction, args []string) {
	if !c.isOperator(ctx, ev.ChatID, ev.UserID) {
		c.reply(ctx, ev.ChatID, "Only chat admins can do that.")
		return
	}
	if len(args) == 0 {
		c.reply(ctx, ev.ChatID, fmt.Sprintf("Usage: %s %s <user>", c.prefix, action))
		return
	}
	target := strings.TrimPrefix(args[0], "@")
	outcome, err := c.manager.Admin(ctx, ev.ChatID, target, action)
	if err != nil {
		c.logger.Error("admin action failed", zap.String("action", string(action)), zap.Error(err))
		c.reply(ctx, ev.ChatID, "The action failed, check the logs.")
		return
	}
	switch outcome {
	case session.AdminOK:
		c.reply(ctx, ev.ChatID, fmt.Sprintf("Done: %s for %s.", action, target))
	case session.AdminNotFound:
		c.reply(ctx, ev.ChatID, "That candidate has no interview in progress.")
	case session.AdminForbidden:
		c.reply(ctx, ev.ChatID, "That action is not possible for this session.")
	}
}

func (c *Controller) cmdSettings(ctx context.Context, ev transport.MessageEvent, cmd string, args []string) {
	if !c.isOperator(ctx, ev.ChatID, ev.UserID) {
		c.reply(ctx, ev.ChatID, "Only chat admins can change settings.")
		return
	}
	settings, err := c.store.Settings.Get(ctx, ev.ChatID)
	if errors.Is(err, store.ErrNotFound) {
		settings = models.DefaultSettings(ev.ChatID)
	} else if err != nil {
		c.logger.Error("settings load failed", zap.Error(err))
		return
	}

	switch cmd {
	case "enable":
		settings.Enabled = true
	case "disable":
		settings.Enabled = false
	case "threshold":
		n, err := intArg(args)
		if err != nil || n < 1 || n > 100 {
			c.reply(ctx, ev.ChatID, "Threshold must be a number from 1 to 100.")
			return
		}
		settings.PassThreshold = n
	case "retries":
		n, err := intArg(args)
		if err != nil || n < 1 || n > 10 {
			c.reply(ctx, ev.ChatID, "Retries must be a number from 1 to 10.")
			return
		}
		settings.MaxRetries = n
	case "autokick":
		on, err := onOffArg(args)
		if err != nil {
			c.reply(ctx, ev.ChatID, "Usage: autokick on|off")
			return
		}
		settings.AutoRemoveOnFail = on
	case "ai":
		on, err := onOffArg(args)
		if err != nil {
			c.reply(ctx, ev.ChatID, "Usage: ai on|off")
			return
		}
		settings.UseLLM = on
	case "link":
		if len(args) == 0 {
			c.reply(ctx, ev.ChatID, "Usage: link <invite url>")
			return
		}
		settings.MainChatLink = args[0]
	}

	settings.UpdatedAt = time.Now()
	if err := c.store.Settings.Put(ctx, settings); err != nil {
		c.logger.Error("settings save failed", zap.Error(err))
		c.reply(ctx, ev.ChatID, "Saving settings failed.")
		return
	}
	c.reply(ctx, ev.ChatID, "Settings updated.")
}

func (c *Controller) cmdPrompt(ctx context.Context, ev transport.MessageEvent, args []string) {
	if !c.isOperator(ctx, ev.ChatID, ev.UserID) {
		c.reply(ctx, ev.ChatID, "Only chat admins can change the scoring prompt.")
		return
	}
	if len(args) == 0 {
		c.reply(ctx, ev.ChatID, "Usage: prompt set <template>|show|clear")
		return
	}
	switch strings.ToLower(args[0]) {
	case "set":
		tpl := strings.TrimSpace(strings.TrimPrefix(strings.Join(args, " "), args[0]))
		if err := prompts.ValidateScoringTemplate(tpl); err != nil {
			c.reply(ctx, ev.ChatID, "The template must contain "+prompts.ResponsesPlaceholder+".")
			return
		}
		if err := c.store.Prompts.Put(ctx, &models.EvalPrompt{ChatID: ev.ChatID, Template: tpl, UpdatedAt: time.Now()}); err != nil {
			c.logger.Error("prompt save failed", zap.Error(err))
			return
		}
		c.reply(ctx, ev.ChatID, "Scoring prompt updated.")
	case "show":
		p, err := c.store.Prompts.Get(ctx, ev.ChatID)
		if errors.Is(err, store.ErrNotFound) {
			c.reply(ctx, ev.ChatID, "This chat uses the default scoring prompt.")
			return
		}
		if err != nil {
			c.logger.Error("prompt load failed", zap.Error(err))
			return
		}
		c.reply(ctx, ev.ChatID, p.Template)
	case "clear":
		if err := c.store.Prompts.Delete(ctx, ev.ChatID); err != nil {
			c.logger.Error("prompt delete failed", zap.Error(err))
			return
		}
		c.reply(ctx, ev.ChatID, "Scoring prompt reset to default.")
	default:
		c.reply(ctx, ev.ChatID, "Usage: prompt set <template>|show|clear")
	}
}

func (c *Controller) helpText(operator bool) string {
	base := fmt.Sprintf("Commands: %[1]s start, %[1]s status, %[1]s retry", c.prefix)
	if !operator {
		return base
	}
	return base + fmt.Sprintf(
		". Admin: %[1]s skip|end|reset|approve|reject <user>, %[1]s enable|disable, %[1]s threshold <n>, %[1]s retries <n>, %[1]s autokick on|off, %[1]s ai on|off, %[1]s link <url>, %[1]s stats, %[1]s questions, %[1]s prompt",
		c.prefix)
}

func intArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("missing argument")
	}
	return strconv.Atoi(args[0])
}

func onOffArg(args []string) (bool, error) {
	if len(args) == 0 {
		return false, errors.New("missing argument")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, errors.New("bad argument")
}
