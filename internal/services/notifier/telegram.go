package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/utils"
)

type telegramNotifier struct {
	bot    *tele.Bot
	chatID tele.ChatID
	log    *logrus.Logger
}

// NewTelegram builds a Notifier that posts to a single reviewer chat.
func NewTelegram(token string, chatID int64, log *logrus.Logger) (Notifier, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &telegramNotifier{
		bot:    bot,
		chatID: tele.ChatID(chatID),
		log:    log,
	}, nil
}

func (n *telegramNotifier) CheckpointPending(ctx context.Context, execution *models.ExecutionEntity, checkpoint *models.CheckpointEntity) {
	n.send(checkpointPendingMessage(execution, checkpoint))
}

func (n *telegramNotifier) ExecutionFinished(ctx context.Context, execution *models.ExecutionEntity) {
	n.send(executionFinishedMessage(execution))
}

func checkpointPendingMessage(execution *models.ExecutionEntity, checkpoint *models.CheckpointEntity) string {
	return fmt.Sprintf(
		"🟡 *Review needed*\nExecution: `%s`\nTask: `%s`\nType: %s\n\n%s",
		execution.ID,
		checkpoint.TaskID,
		checkpoint.Type,
		utils.TruncateForLog(checkpoint.Content, 500),
	)
}

func executionFinishedMessage(execution *models.ExecutionEntity) string {
	icon := "✅"
	if execution.Status == models.ExecutionStatusFailed {
		icon = "❌"
	} else if execution.Status == models.ExecutionStatusCancelled {
		icon = "🚫"
	}
	text := fmt.Sprintf("%s *Execution %s*\nID: `%s`", icon, execution.Status, execution.ID)
	if execution.ErrorMessage.Valid && execution.ErrorMessage.String != "" {
		text += fmt.Sprintf("\nError: %s", utils.TruncateForLog(execution.ErrorMessage.String, 300))
	}
	return text
}

// send is fire-and-forget so a slow Telegram API never blocks the
// orchestration flow that triggered the notification.
func (n *telegramNotifier) send(text string) {
	utils.SafeGo(func() {
		if _, err := n.bot.Send(n.chatID, text, tele.ModeMarkdown); err != nil {
			n.log.WithError(err).Warn("Failed to send telegram notification")
		}
	})
}
