package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fachschaft/rocketbot/internal/chat"
	"github.com/fachschaft/rocketbot/internal/constants"
	"github.com/fachschaft/rocketbot/internal/poll"
	"github.com/fachschaft/rocketbot/internal/utils"
)

// все команды опросов идут через одну очередь
const pollFamily = "poll"

var ErrUnknownCommand = errors.New("bot: unknown command")

// UsageError: ошибка ввода, которая уходит пользователю ответом.
type UsageError struct {
	Reply string
}

func (e *UsageError) Error() string {
	return "bot: usage: " + e.Reply
}

type CommandKind int

const (
	CmdCreate CommandKind = iota + 1
	CmdAppendOrCreate
	CmdPush
)

func (k CommandKind) String() string {
	switch k {
	case CmdCreate:
		return "create"
	case CmdAppendOrCreate:
		return "append_or_create"
	case CmdPush:
		return "push"
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command: разобранная команда из сообщения.
type Command struct {
	Kind    CommandKind
	RoomID  string
	MsgID   string
	Title   string
	Options []string
	// Target и Channels: только для CmdPush
	Target   string
	Channels []chat.RoomRef
}

// ParseCommand разбирает текст сообщения. Неизвестная команда -
// ErrUnknownCommand, кривые аргументы: *UsageError.
func ParseCommand(msg chat.Message) (Command, error) {
	name, rest := utils.SplitCommand(msg.Text)
	cmd := Command{RoomID: msg.RoomID, MsgID: msg.ID}

	switch name {
	case constants.CmdPoll:
		args, err := utils.ParseArgs(rest)
		if err != nil {
			return cmd, &UsageError{Reply: constants.MsgBadArgs}
		}
		if len(args) < 2 {
			return cmd, &UsageError{Reply: constants.MsgPollUsage}
		}
		cmd.Kind = CmdCreate
		cmd.Title = args[0]
		cmd.Options = args[1:]
	case constants.CmdPollPush:
		target, ok := utils.ParseRoomArg(rest)
		if !ok {
			return cmd, &UsageError{Reply: constants.MsgSpecifyRoom}
		}
		cmd.Kind = CmdPush
		cmd.Target = target
		cmd.Channels = msg.Channels
	case constants.CmdEtm, constants.CmdEtlm:
		args, err := utils.ParseArgs(rest)
		if err != nil {
			return cmd, &UsageError{Reply: constants.MsgBadArgs}
		}
		cmd.Kind = CmdAppendOrCreate
		cmd.Title = constants.EtmTitle
		cmd.Options = args
	default:
		return cmd, ErrUnknownCommand
	}
	return cmd, nil
}

type HandlerConfig struct {
	Manager   *poll.Manager
	Transport chat.Transport
	Directory chat.Directory
	// DefaultOption: вариант etm, если опрос создаётся без вариантов
	DefaultOption string
	Logger        *zap.SugaredLogger
}

// Handler выполняет команды опросов и отвечает пользователю на ошибки ввода.
type Handler struct {
	manager       *poll.Manager
	transport     chat.Transport
	directory     chat.Directory
	defaultOption string
	log           *zap.SugaredLogger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		manager:       cfg.Manager,
		transport:     cfg.Transport,
		directory:     cfg.Directory,
		defaultOption: cfg.DefaultOption,
		log:           logger,
	}
}

// Execute: точка входа из диспетчера.
func (h *Handler) Execute(ctx context.Context, cmd Command) error {
	h.log.Debugf("▶️ Команда %s в %s (msgID=%s)", cmd.Kind, cmd.RoomID, cmd.MsgID)
	switch cmd.Kind {
	case CmdCreate:
		return h.HandleCreate(ctx, cmd.RoomID, cmd.MsgID, cmd.Title, cmd.Options)
	case CmdAppendOrCreate:
		return h.HandleAppendOrCreate(ctx, cmd.RoomID, cmd.MsgID, cmd.Title, cmd.Options)
	case CmdPush:
		return h.HandlePush(ctx, cmd.RoomID, cmd.MsgID, cmd.Target, cmd.Channels)
	}
	return fmt.Errorf("bot: unexpected command kind %s", cmd.Kind)
}

func (h *Handler) HandleCreate(ctx context.Context, roomID, msgID, title string, options []string) error {
	err := h.manager.Create(ctx, roomID, msgID, title, options)
	if errors.Is(err, poll.ErrTooManyOptions) {
		return h.reply(ctx, roomID, constants.MsgTooManyOption)
	}
	return err
}

func (h *Handler) HandleAppendOrCreate(ctx context.Context, roomID, msgID, title string, options []string) error {
	err := h.manager.AppendOrCreate(ctx, roomID, msgID, title, options, h.defaultOption)
	if errors.Is(err, poll.ErrTooManyOptions) {
		return h.reply(ctx, roomID, constants.MsgTooManyOption)
	}
	return err
}

// HandlePush отправляет последний опрос комнаты в #target. Публичные
// комнаты берутся из ссылок в сообщении, приватные ищутся по имени.
func (h *Handler) HandlePush(ctx context.Context, roomID, msgID, target string, channels []chat.RoomRef) error {
	if !h.manager.HasActivePoll(roomID) {
		return h.reply(ctx, roomID, constants.MsgNoActivePoll)
	}

	targetID := ""
	for _, ref := range channels {
		if ref.Name == target {
			targetID = ref.ID
			break
		}
	}
	if targetID == "" {
		room, err := h.directory.RoomByName(ctx, target)
		if err != nil {
			h.log.Warnf("⚠️ Комната %q не найдена: %v", target, err)
			return h.reply(ctx, roomID, constants.MsgRoomNotFound)
		}
		targetID = room.ID
	}

	err := h.manager.Push(ctx, roomID, msgID, targetID)
	if errors.Is(err, poll.ErrNoActivePoll) {
		return h.reply(ctx, roomID, constants.MsgNoActivePoll)
	}
	return err
}

func (h *Handler) reply(ctx context.Context, roomID, text string) error {
	if _, err := h.transport.SendMessage(ctx, roomID, text); err != nil {
		return fmt.Errorf("bot: reply: %w", err)
	}
	return nil
}
