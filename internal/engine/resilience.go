package engine

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Команды оператора в канале Pub/Sub
const (
	CommandAudit = "audit"
	CommandRetry = "retry"
)

// ListenCommandsResilient: "живучая" подписка на канал команд Redis.
// Обрабатывает переподключения, логирование и разбор команд.
func ListenCommandsResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error, // Callback для синхронизации при переподключении
	onCommand func(cmd string), // Callback для обработки команды
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				logger.Error("sync failed on reconnect", zap.Error(err))
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				cmd := strings.ToLower(strings.TrimSpace(msg.Payload))
				if cmd != CommandAudit && cmd != CommandRetry {
					logger.Error("invalid command", zap.String("payload", msg.Payload))
					continue
				}
				onCommand(cmd)
			}
		}

		_ = pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// HandleCommand исполняет команду оператора из канала. Паника команды уходит в recovery.
func (s *Supervisor) HandleCommand(ctx context.Context, cmd string) {
	err := s.recovery.Guard("command:"+cmd, func() error {
		switch cmd {
		case CommandAudit:
			r := s.RunAudit(ctx)
			s.logger.Info("on-demand audit finished", zap.String("report_id", r.ID), zap.Float64("score", r.OverallScore))
		case CommandRetry:
			return s.Restart(ctx)
		default:
			s.logger.Debug("unknown command ignored", zap.String("cmd", cmd))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("command failed", zap.String("cmd", cmd), zap.Error(err))
	}
}
