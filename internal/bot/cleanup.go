package bot

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PollCleaner удаляет из базы записи опросов старше before.
type PollCleaner interface {
	CleanupOldPolls(before time.Time) (int64, error)
}

// RunCleanupRoutine раз в interval чистит записи старше retention.
// Живые опросы в памяти не трогаются: после перезапуска они просто не поднимутся.
func RunCleanupRoutine(ctx context.Context, cleaner PollCleaner, interval, retention time.Duration, log *zap.SugaredLogger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			CleanupOldPolls(cleaner, now.Add(-retention), log)
		}
	}
}

// CleanupOldPolls: один проход очистки.
func CleanupOldPolls(cleaner PollCleaner, before time.Time, log *zap.SugaredLogger) {
	count, err := cleaner.CleanupOldPolls(before)
	if err != nil {
		log.Errorf("❌ Ошибка очистки: %v", err)
		return
	}
	if count > 0 {
		log.Infof("🧹 Удалено %d старых опросов", count)
	}
}
