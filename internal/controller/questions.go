package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gatekeeper/internal/models"
	"gatekeeper/internal/questions"
	"gatekeeper/internal/selection"
	"gatekeeper/internal/store"
	"gatekeeper/internal/transport"
)

const selRemoveQuestion = "questions.remove"

func (c *Controller) cmdQuestions(ctx context.Context, ev transport.MessageEvent, args []string) {
	if !c.isOperator(ctx, ev.ChatID, ev.UserID) {
		c.reply(ctx, ev.ChatID, "Only chat admins can manage questions.")
		return
	}
	if len(args) == 0 {
		c.reply(ctx, ev.ChatID, "Usage: questions list|add|remove|reset")
		return
	}

	switch strings.ToLower(args[0]) {
	case "list":
		c.listQuestions(ctx, ev)
	case "add":
		c.addQuestion(ctx, ev, args[1:])
	case "remove":
		c.removeQuestionMenu(ctx, ev)
	case "reset":
		defaults, err := questions.DefaultBank()
		if err != nil {
			c.logger.Error("default bank load failed", zap.Error(err))
			return
		}
		bank := &models.QuestionBank{ChatID: ev.ChatID, Questions: defaults, UpdatedAt: time.Now()}
		if err := c.store.Questions.Put(ctx, bank); err != nil {
			c.logger.Error("question reset failed", zap.Error(err))
			return
		}
		c.reply(ctx, ev.ChatID, fmt.Sprintf("Question bank reset to the %d default questions.", len(bank.Questions)))
	default:
		c.reply(ctx, ev.ChatID, "Usage: questions list|add|remove|reset")
	}
}

func (c *Controller) bank(ctx context.Context, chatID string) (*models.QuestionBank, error) {
	bank, err := c.store.Questions.Get(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		defaults, derr := questions.DefaultBank()
		if derr != nil {
			return nil, derr
		}
		return &models.QuestionBank{ChatID: chatID, Questions: defaults}, nil
	}
	return bank, err
}

func (c *Controller) listQuestions(ctx context.Context, ev transport.MessageEvent) {
	bank, err := c.bank(ctx, ev.ChatID)
	if err != nil {
		c.logger.Error("question load failed", zap.Error(err))
		return
	}
	var b strings.Builder
	b.WriteString("Interview questions:\n")
	for i, q := range bank.Questions {
		flag := ""
		if q.Required {
			flag = " (required)"
		}
		fmt.Fprintf(&b, "%d. [%s, weight %.0f]%s %s\n", i+1, q.Type, q.Weight, flag, q.Text)
	}
	c.reply(ctx, ev.ChatID, b.String())
}

// addQuestion accepts: add <type> <weight> <text...>
func (c *Controller) addQuestion(ctx context.Context, ev transport.MessageEvent, args []string) {
	if len(args) < 3 {
		c.reply(ctx, ev.ChatID, "Usage: questions add <open|boolean|choice|photo|dob> <weight> <text>")
		return
	}
	qt := models.QuestionType(strings.ToLower(args[0]))
	switch qt {
	case models.QuestionOpen, models.QuestionBoolean, models.QuestionChoice, models.QuestionPhoto, models.QuestionDOB:
	default:
		c.reply(ctx, ev.ChatID, "Question type must be one of open, boolean, choice, photo, dob.")
		return
	}
	weight, err := intArg(args[1:])
	if err != nil || weight < 1 || weight > 100 {
		c.reply(ctx, ev.ChatID, "Weight must be a number from 1 to 100.")
		return
	}

	bank, err := c.bank(ctx, ev.ChatID)
	if err != nil {
		c.logger.Error("question load failed", zap.Error(err))
		return
	}
	bank.Questions = append(bank.Questions, models.Question{
		ID:     "q-" + uuid.NewString()[:8],
		Text:   strings.Join(args[2:], " "),
		Type:   qt,
		Weight: float64(weight),
	})
	bank.UpdatedAt = time.Now()
	if err := c.store.Questions.Put(ctx, bank); err != nil {
		c.logger.Error("question save failed", zap.Error(err))
		return
	}
	c.reply(ctx, ev.ChatID, fmt.Sprintf("Question %d added.", len(bank.Questions)))
}

// removeQuestionMenu sends a numbered menu and remembers a one-shot
// selection context keyed by the menu message id. The admin removes a
// question by replying to the menu with its number.
func (c *Controller) removeQuestionMenu(ctx context.Context, ev transport.MessageEvent) {
	bank, err := c.bank(ctx, ev.ChatID)
	if err != nil {
		c.logger.Error("question load failed", zap.Error(err))
		return
	}
	if len(bank.Questions) <= 1 {
		c.reply(ctx, ev.ChatID, "The last question cannot be removed. Use questions reset to restore the defaults.")
		return
	}

	var b strings.Builder
	b.WriteString("Reply to this message with the number of the question to remove:\n")
	options := make([]string, 0, len(bank.Questions))
	for i, q := range bank.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
		options = append(options, q.ID)
	}

	msgID := c.reply(ctx, ev.ChatID, b.String())
	if msgID == "" {
		return
	}
	c.matcher.Remember(ctx, msgID, selection.Context{
		Kind:       selRemoveQuestion,
		Options:    options,
		HandlerRef: ev.ChatID,
	})
}

// dispatchSelection handles a numeric reply that matched a stored
// selection context. Returns false to fall through to normal ingest.
func (c *Controller) dispatchSelection(ctx context.Context, ev transport.MessageEvent, d selection.Dispatch) bool {
	switch d.Context.Kind {
	case selRemoveQuestion:
		if !c.isOperator(ctx, ev.ChatID, ev.UserID) {
			return false
		}
		c.removeQuestionByID(ctx, ev, d.Context.Options[d.Choice-1])
		return true
	}
	return false
}

func (c *Controller) removeQuestionByID(ctx context.Context, ev transport.MessageEvent, id string) {
	bank, err := c.bank(ctx, ev.ChatID)
	if err != nil {
		c.logger.Error("question load failed", zap.Error(err))
		return
	}
	// Re-checked here: the bank may have shrunk since the menu was sent.
	if len(bank.Questions) <= 1 {
		c.reply(ctx, ev.ChatID, "The last question cannot be removed. Use questions reset to restore the defaults.")
		return
	}
	kept := bank.Questions[:0]
	removed := false
	for _, q := range bank.Questions {
		if q.ID == id && !removed {
			removed = true
			continue
		}
		kept = append(kept, q)
	}
	if !removed {
		c.reply(ctx, ev.ChatID, "That question no longer exists.")
		return
	}
	bank.Questions = kept
	bank.UpdatedAt = time.Now()
	if err := c.store.Questions.Put(ctx, bank); err != nil {
		c.logger.Error("question save failed", zap.Error(err))
		return
	}
	c.reply(ctx, ev.ChatID, fmt.Sprintf("Question removed, %d remain.", len(bank.Questions)))
}
