package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/fachschaft/rocketbot/config"
	"github.com/fachschaft/rocketbot/internal/bot"
	"github.com/fachschaft/rocketbot/internal/chat"
	"github.com/fachschaft/rocketbot/internal/db"
	"github.com/fachschaft/rocketbot/internal/poll"
	"github.com/fachschaft/rocketbot/internal/rocketchat"
)

const cleanupInterval = time.Hour

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌ Ошибка конфигурации:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌ Не удалось создать логгер:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()
	if !cfg.EnvFileLoaded {
		log.Warnf("⚠️ Не удалось загрузить .env файл, используем переменные среды")
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer store.Close()
	log.Infof("✅ База данных %s инициализирована", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// переподключение с фиксированной паузой
	for {
		err := runSession(ctx, cfg, store, log)
		if ctx.Err() != nil {
			log.Infof("👋 Бот остановлен")
			return
		}
		log.Errorf("❌ Сессия прервана: %v, переподключение через %s", err, cfg.RestartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.RestartDelay):
		}
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

// runSession обслуживает одно подключение к серверу: вход, восстановление опросов,
// подписка и работа до обрыва.
func runSession(ctx context.Context, cfg *config.Config, store *db.Store, log *zap.SugaredLogger) error {
	client, err := rocketchat.NewClient(rocketchat.Config{
		URL:      cfg.ServerURL,
		Username: cfg.Username,
		Password: cfg.Password,
		Logger:   log.Named("rocketchat"),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return err
	}

	statusRoom, err := client.RoomByName(connectCtx, cfg.StatusRoom)
	if err != nil {
		return fmt.Errorf("status room %q: %w", cfg.StatusRoom, err)
	}

	pollRooms := bot.NewRoomSet()
	manager := poll.NewManager(poll.ManagerConfig{
		Transport:    client,
		Directory:    client,
		Store:        store,
		Whitelist:    pollRooms,
		BotName:      cfg.Username,
		StatusRoomID: statusRoom.ID,
		Logger:       log.Named("poll"),
		Now:          func() time.Time { return time.Now().In(cfg.Location) },
	})
	if err := manager.Restore(connectCtx); err != nil {
		log.Warnf("⚠️ Опросы не восстановлены: %v", err)
	}

	handler := bot.NewHandler(bot.HandlerConfig{
		Manager:       manager,
		Transport:     client,
		Directory:     client,
		DefaultOption: cfg.EtmDefaultOption,
		Logger:        log.Named("commands"),
	})
	bots := []bot.CommandBot{bot.DirectMessageBot()}
	if cfg.MensaRoom != "" {
		bots = append(bots, bot.MensaBot(bot.NewRoomSet(cfg.MensaRoom)))
	}
	dispatcher := bot.NewDispatcher(bot.DispatcherConfig{
		Feed:         manager,
		Handler:      handler,
		Transport:    client,
		PollRooms:    pollRooms,
		Bots:         bots,
		BotName:      cfg.Username,
		StatusRoomID: statusRoom.ID,
		Logger:       log.Named("dispatcher"),
	})

	if err := client.SubscribeMyMessages(connectCtx, func(ev chat.Event) { dispatcher.Push(ev) }); err != nil {
		return err
	}
	log.Infof("✅ Бот %s запущен", cfg.Username)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := client.Run(gctx); err != nil {
			return err
		}
		return gctx.Err()
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		return bot.RunCleanupRoutine(gctx, store, cleanupInterval, cfg.PollRetention, log.Named("cleanup"))
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
