// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type Config struct {
	ServerURL string
	Username  string
	Password  string

	// StatusRoom: имя комнаты для статус-записей опросов
	StatusRoom string
	// MensaRoom: комната, где работают etm/etlm; пусто: только личка
	MensaRoom string

	DBPath           string
	EtmDefaultOption string
	PollRetention    time.Duration
	Location         *time.Location
	RestartDelay     time.Duration
	Debug            bool

	// EnvFileLoaded: удалось ли прочитать env-файл
	EnvFileLoaded bool
}

// LoadConfig читает флаги из args, env-файл и переменные окружения.
// Переменные окружения важнее значений из файла.
func LoadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("rocketbot", pflag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "путь к .env файлу")
	debug := fs.Bool("debug", false, "подробные логи")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := godotenv.Load(*envFile); err == nil {
		cfg.EnvFileLoaded = true
	} else if fs.Changed("env-file") {
		return nil, fmt.Errorf("config: load %s: %w", *envFile, err)
	}

	cfg.ServerURL = os.Getenv("ROCKETCHAT_URL")
	cfg.Username = os.Getenv("ROCKETCHAT_USER")
	cfg.Password = os.Getenv("ROCKETCHAT_PASSWORD")
	cfg.StatusRoom = os.Getenv("POLL_STATUS_ROOM")
	cfg.MensaRoom = os.Getenv("MENSA_ROOM")
	cfg.DBPath = getEnv("DB_PATH", "bot.db")
	cfg.EtmDefaultOption = getEnv("ETM_DEFAULT_OPTION", "11:30")

	var errs []error
	for name, v := range map[string]string{
		"ROCKETCHAT_URL":      cfg.ServerURL,
		"ROCKETCHAT_USER":     cfg.Username,
		"ROCKETCHAT_PASSWORD": cfg.Password,
		"POLL_STATUS_ROOM":    cfg.StatusRoom,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("config: %s is required", name))
		}
	}

	var err error
	if cfg.PollRetention, err = getDuration("POLL_RETENTION", 7*24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.RestartDelay, err = getDuration("RESTART_DELAY", 10*time.Second); err != nil {
		errs = append(errs, err)
	}

	tz := getEnv("TIMEZONE", "Local")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		errs = append(errs, fmt.Errorf("config: TIMEZONE: %w", err))
	}

	cfg.Debug = *debug
	if val, ok := os.LookupEnv("DEBUG"); ok && !fs.Changed("debug") {
		// "1" или "true": включить
		cfg.Debug, _ = strconv.ParseBool(strings.TrimSpace(val))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getEnv(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func getDuration(name string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return d, nil
}
