package bot

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fachschaft/rocketbot/internal/chat"
	"github.com/fachschaft/rocketbot/internal/constants"
	"github.com/fachschaft/rocketbot/internal/utils"
)

// сколько id обработанных команд помнить
const seenLimit = 1024

// CommandBot: набор команд для комнат, подходящих под Match.
type CommandBot struct {
	Name     string
	Commands []string
	Match    func(room chat.Room) bool
	// ReplyUnknown: отвечать ли подсказкой на незнакомую команду
	ReplyUnknown bool
}

func (b CommandBot) handles(command string) bool {
	for _, c := range b.Commands {
		if c == command {
			return true
		}
	}
	return false
}

// DirectMessageBot: все команды опросов в личке.
func DirectMessageBot() CommandBot {
	return CommandBot{
		Name:         "direct",
		Commands:     []string{constants.CmdPoll, constants.CmdPollPush, constants.CmdEtm, constants.CmdEtlm},
		Match:        func(room chat.Room) bool { return room.Type == chat.RoomDirect },
		ReplyUnknown: true,
	}
}

// MensaBot: etm/etlm в комнатах из списка, молча.
func MensaBot(rooms *RoomSet) CommandBot {
	return CommandBot{
		Name:     "mensa",
		Commands: []string{constants.CmdEtm, constants.CmdEtlm},
		Match:    rooms.Has,
	}
}

type DispatcherConfig struct {
	Feed         PollFeed
	Handler      *Handler
	Transport    chat.Transport
	Sequencer    *Sequencer
	PollRooms    *RoomSet
	Bots         []CommandBot
	BotName      string
	StatusRoomID string
	Logger       *zap.SugaredLogger
}

// Dispatcher принимает события от транспорта и раздаёт их. Очередь
// не ограничена, поэтому Push никогда не блокирует читателя сокета.
// Ленты опросов обрабатываются по порядку в одном потоке, команды
// встают в Sequencer в порядке прихода и выполняются в своих горутинах.
type Dispatcher struct {
	feed         PollFeed
	handler      *Handler
	transport    chat.Transport
	seq          *Sequencer
	pollRooms    *RoomSet
	bots         []CommandBot
	botName      string
	statusRoomID string
	log          *zap.SugaredLogger

	mu     sync.Mutex
	queue  []chat.Event
	notify chan struct{}

	seen      map[string]struct{}
	seenOrder []string

	inflight sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	seq := cfg.Sequencer
	if seq == nil {
		seq = NewSequencer()
	}
	pollRooms := cfg.PollRooms
	if pollRooms == nil {
		pollRooms = NewRoomSet()
	}
	return &Dispatcher{
		feed:         cfg.Feed,
		handler:      cfg.Handler,
		transport:    cfg.Transport,
		seq:          seq,
		pollRooms:    pollRooms,
		bots:         cfg.Bots,
		botName:      cfg.BotName,
		statusRoomID: cfg.StatusRoomID,
		log:          logger,
		notify:       make(chan struct{}, 1),
		seen:         make(map[string]struct{}),
	}
}

// Push ставит событие в очередь.
func (d *Dispatcher) Push(ev chat.Event) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Run разбирает очередь до отмены ctx и дожидается запущенных команд.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.inflight.Wait()
	for {
		for {
			ev, ok := d.pop()
			if !ok {
				break
			}
			d.dispatch(ctx, ev)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-d.notify:
		}
	}
}

func (d *Dispatcher) pop() (chat.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return chat.Event{}, false
	}
	ev := d.queue[0]
	d.queue[0] = chat.Event{}
	d.queue = d.queue[1:]
	return ev, true
}

func (d *Dispatcher) dispatch(ctx context.Context, ev chat.Event) {
	if ev.Room.ID == "" {
		ev.Room.ID = ev.Message.RoomID
	}
	if d.feed != nil {
		d.handlePollFeeds(ctx, ev)
	}

	msg := ev.Message
	if msg.Author.Username == d.botName || msg.Text == "" || msg.EditedBy != nil {
		return
	}
	bot, ok := d.botFor(ev.Room)
	if !ok {
		return
	}
	if !d.markSeen(msg.ID) {
		return
	}

	name, _ := utils.SplitCommand(msg.Text)
	if !bot.handles(name) {
		if bot.ReplyUnknown {
			d.run(ctx, func(ctx context.Context) error { return d.reply(ctx, msg.RoomID, constants.MsgUnknown) })
		}
		return
	}

	cmd, err := ParseCommand(msg)
	if err != nil {
		var usage *UsageError
		if !errors.As(err, &usage) {
			d.log.Warnf("⚠️ Команда %q не разобрана: %v", name, err)
			return
		}
		d.run(ctx, func(ctx context.Context) error { return d.reply(ctx, msg.RoomID, usage.Reply) })
		return
	}

	d.log.Infof("📩 Команда от %s в %s: %s", msg.Author.Username, ev.Room.Key(), msg.Text)
	d.run(ctx, func(ctx context.Context) error { return d.handler.Execute(ctx, cmd) })
}

// run занимает место в очереди сейчас, а выполняет fn в горутине.
func (d *Dispatcher) run(ctx context.Context, fn func(context.Context) error) {
	tok := d.seq.Enter(pollFamily)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer tok.Release()
		if err := tok.Wait(ctx); err != nil {
			return
		}
		if err := fn(ctx); err != nil {
			d.log.Errorf("❌ Ошибка выполнения команды: %v", err)
		}
	}()
}

func (d *Dispatcher) botFor(room chat.Room) (CommandBot, bool) {
	for _, b := range d.bots {
		if b.Match != nil && b.Match(room) {
			return b, true
		}
	}
	return CommandBot{}, false
}

// markSeen: false, если команду с этим id уже обрабатывали.
func (d *Dispatcher) markSeen(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	d.seenOrder = append(d.seenOrder, id)
	if len(d.seenOrder) > seenLimit {
		delete(d.seen, d.seenOrder[0])
		d.seenOrder = d.seenOrder[1:]
	}
	return true
}

func (d *Dispatcher) reply(ctx context.Context, roomID, text string) error {
	_, err := d.transport.SendMessage(ctx, roomID, text)
	return err
}
