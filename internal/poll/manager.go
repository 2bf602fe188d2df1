package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fachschaft/rocketbot/internal/chat"
)

// StoredPoll: опрос, сохранённый за комнатой.
type StoredPoll struct {
	RoomID string
	Poll   *Poll
}

// Store хранит активные опросы, чтобы пережить перезапуск.
type Store interface {
	SavePoll(roomID string, p *Poll) error
	DeletePoll(roomID string) error
	LoadPolls() ([]StoredPoll, error)
}

// Whitelist: комнаты, события которых уходят в HandlePollEvent.
type Whitelist interface {
	Add(room string)
	Remove(room string)
}

type ManagerConfig struct {
	Transport    chat.Transport
	Directory    chat.Directory
	Store        Store
	Whitelist    Whitelist
	BotName      string
	StatusRoomID string
	Logger       *zap.SugaredLogger
	// Now по умолчанию time.Now
	Now func() time.Time
}

// Manager единственный владелец опросов, по одному активному на комнату.
// Все операции идут под одним мьютексом, включая вызовы транспорта.
type Manager struct {
	mu sync.Mutex

	transport    chat.Transport
	directory    chat.Directory
	store        Store
	whitelist    Whitelist
	botName      string
	statusRoomID string
	log          *zap.SugaredLogger
	now          func() time.Time

	polls      map[string]*Poll
	lastActive map[string]*Poll
	// статус-записи, поправленные кем-то снаружи, по id сообщения
	external map[string]*Poll
}

func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		transport:    cfg.Transport,
		directory:    cfg.Directory,
		store:        cfg.Store,
		whitelist:    cfg.Whitelist,
		botName:      cfg.BotName,
		statusRoomID: cfg.StatusRoomID,
		log:          logger,
		now:          now,
		polls:        make(map[string]*Poll),
		lastActive:   make(map[string]*Poll),
		external:     make(map[string]*Poll),
	}
}

// Create создаёт новый опрос в комнате, заменяя прежний.
func (m *Manager) Create(ctx context.Context, roomID, msgID, title string, options []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(ctx, roomID, msgID, title, options)
}

func (m *Manager) create(ctx context.Context, roomID, msgID, title string, options []string) error {
	p, err := New(m.botName, msgID, title, options, m.now())
	if err != nil {
		return err
	}
	if err := m.sendNewMessage(ctx, p, roomID); err != nil {
		return err
	}
	m.watch(ctx, roomID)

	m.polls[roomID] = p
	m.lastActive[roomID] = p

	status, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("poll: encode status: %w", err)
	}
	statusID, err := m.transport.SendMessage(ctx, m.statusRoomID, string(status))
	if err != nil {
		return fmt.Errorf("poll: send status: %w", err)
	}
	p.StatusMsgID = statusID
	m.save(roomID, p)

	m.log.Infof("✅ Опрос %q создан в %s (%d вариантов), msgID=%s", title, roomID, len(p.Options), p.PollMsgID)
	return nil
}

// HasActivePoll: есть ли опрос, который можно отправить из комнаты через Push.
func (m *Manager) HasActivePoll(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lastActive[roomID]
	return ok
}

// Push заново отправляет последний опрос комнаты sourceRoomID в targetRoomID.
// Статус-сообщение правится, новое не создаётся.
func (m *Manager) Push(ctx context.Context, sourceRoomID, msgID, targetRoomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.lastActive[sourceRoomID]
	if !ok {
		return ErrNoActivePoll
	}
	p.OriginalMsgID = msgID

	if err := m.sendNewMessage(ctx, p, targetRoomID); err != nil {
		return err
	}
	m.watch(ctx, targetRoomID)
	m.polls[targetRoomID] = p
	m.lastActive[targetRoomID] = p

	if err := m.updateStatus(ctx, p); err != nil {
		return err
	}
	m.save(targetRoomID, p)
	if m.polls[sourceRoomID] == p {
		m.save(sourceRoomID, p)
	}

	m.log.Infof("📤 Опрос %q из %s отправлен в %s, msgID=%s", p.Title, sourceRoomID, targetRoomID, p.PollMsgID)
	return nil
}

// AppendOrCreate дописывает варианты в сегодняшний опрос с тем же
// заголовком, иначе создаёт новый.
func (m *Manager) AppendOrCreate(ctx context.Context, roomID, msgID, title string, options []string, defaultOption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.polls[roomID]
	if p != nil && p.IsSameDayTitledAs(title, m.now()) {
		added := false
		for _, text := range options {
			if p.AddOption(text) {
				added = true
			}
		}
		if !added {
			return nil
		}
		if err := m.resend(ctx, p); err != nil {
			return err
		}
		if err := m.updateStatus(ctx, p); err != nil {
			return err
		}
		m.save(roomID, p)
		m.log.Infof("➕ В опрос %q в %s добавлены варианты", title, roomID)
		return nil
	}

	if len(options) == 0 && defaultOption != "" {
		options = []string{defaultOption}
	}
	return m.create(ctx, roomID, msgID, title, options)
}

// HandlePollEvent обрабатывает события из комнат с опросами. Стёртое
// исходное сообщение снимает опрос, изменение реакций его пересчитывает.
func (m *Manager) HandlePollEvent(ctx context.Context, ev chat.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID := ev.Message.RoomID
	p, ok := m.polls[roomID]
	if !ok {
		return nil
	}

	msgID := ev.Message.ID
	if msgID == p.OriginalMsgID {
		if ev.Message.Text == "" {
			return m.withdraw(ctx, roomID, p)
		}
		return nil
	}
	if p.PollMsgID == "" || msgID != p.PollMsgID {
		return nil
	}
	// только что отправленное сообщение: реакции бота ещё не проставлены
	if len(ev.Message.Reactions) == 0 {
		return nil
	}
	if !p.Reconcile(ev.Message.Reactions) {
		return nil
	}

	text := p.Render(ctx, m.displayName)
	if err := m.transport.UpdateMessage(ctx, chat.MessageUpdate{ID: p.PollMsgID, RoomID: roomID, Text: &text}); err != nil {
		return fmt.Errorf("poll: update poll message: %w", err)
	}
	if err := m.updateStatus(ctx, p); err != nil {
		return err
	}
	m.save(roomID, p)
	return nil
}

// withdraw снимает опрос во всех комнатах, куда он был отправлен.
func (m *Manager) withdraw(ctx context.Context, roomID string, p *Poll) error {
	for id, active := range m.polls {
		if active != p {
			continue
		}
		delete(m.polls, id)
		m.unwatch(ctx, id)
		if m.store != nil {
			if err := m.store.DeletePoll(id); err != nil {
				m.log.Warnf("⚠️ Не удалось удалить опрос %s из базы: %v", id, err)
			}
		}
	}
	for id, last := range m.lastActive {
		if last == p {
			delete(m.lastActive, id)
		}
	}
	m.log.Infof("🗑 Опрос %q в %s снят", p.Title, roomID)

	if p.PollMsgID == "" {
		return nil
	}
	if err := m.transport.DeleteMessage(ctx, p.PollMsgID); err != nil {
		return fmt.Errorf("poll: delete poll message: %w", err)
	}
	return nil
}

// HandleStatusEvent: правки в статусной комнате. Учитываются только
// сообщения бота, поправленные кем-то другим. Живой опрос не трогается.
func (m *Manager) HandleStatusEvent(_ context.Context, ev chat.Event) error {
	msg := ev.Message
	if msg.Author.Username != m.botName {
		return nil
	}
	if msg.EditedBy == nil || msg.EditedBy.Username == m.botName {
		return nil
	}

	p, err := DecodeStatus([]byte(msg.Text))
	if err != nil {
		return err
	}
	p.StatusMsgID = msg.ID

	m.mu.Lock()
	m.external[msg.ID] = p
	m.mu.Unlock()

	m.log.Infof("📝 Статус опроса %q (msgID=%s) поправлен пользователем %s", p.Title, msg.ID, msg.EditedBy.Username)
	return nil
}

// ExternalStatus: последняя внешняя правка статус-сообщения.
func (m *Manager) ExternalStatus(statusMsgID string) (*Poll, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.external[statusMsgID]
	return p, ok
}

// Restore поднимает опросы из хранилища после перезапуска.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	stored, err := m.store.LoadPolls()
	if err != nil {
		if len(stored) == 0 {
			return fmt.Errorf("poll: restore: %w", err)
		}
		m.log.Warnf("⚠️ Часть опросов не восстановлена: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sp := range stored {
		m.polls[sp.RoomID] = sp.Poll
		m.lastActive[sp.RoomID] = sp.Poll
		m.watch(ctx, sp.RoomID)
	}
	if len(stored) > 0 {
		m.log.Infof("♻️ Восстановлено опросов: %d", len(stored))
	}
	return nil
}

func (m *Manager) sendNewMessage(ctx context.Context, p *Poll, roomID string) error {
	text := p.Render(ctx, m.displayName)
	id, err := m.transport.SendMessage(ctx, roomID, text)
	if err != nil {
		return fmt.Errorf("poll: send poll message: %w", err)
	}
	p.PollMsgID = id
	if err := m.transport.UpdateMessage(ctx, chat.MessageUpdate{ID: id, RoomID: roomID, Reactions: p.ReactionSeed()}); err != nil {
		return fmt.Errorf("poll: seed reactions: %w", err)
	}
	return nil
}

func (m *Manager) resend(ctx context.Context, p *Poll) error {
	if p.PollMsgID == "" {
		return ErrNoPollMessage
	}
	text := p.Render(ctx, m.displayName)
	err := m.transport.UpdateMessage(ctx, chat.MessageUpdate{ID: p.PollMsgID, Text: &text, Reactions: p.ReactionSeed()})
	if err != nil {
		return fmt.Errorf("poll: resend poll message: %w", err)
	}
	return nil
}

func (m *Manager) updateStatus(ctx context.Context, p *Poll) error {
	if p.StatusMsgID == "" {
		return nil
	}
	status, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("poll: encode status: %w", err)
	}
	err = m.transport.UpdateMessage(ctx, chat.MessageUpdate{ID: p.StatusMsgID, RoomID: m.statusRoomID, Text: chat.Text(string(status))})
	if err != nil {
		return fmt.Errorf("poll: update status: %w", err)
	}
	return nil
}

func (m *Manager) displayName(ctx context.Context, username string) (string, error) {
	if m.directory == nil {
		return username, nil
	}
	return m.directory.DisplayName(ctx, username)
}

func (m *Manager) watch(ctx context.Context, roomID string) {
	if m.whitelist == nil {
		return
	}
	m.whitelist.Add(m.roomKey(ctx, roomID))
}

func (m *Manager) unwatch(ctx context.Context, roomID string) {
	if m.whitelist == nil {
		return
	}
	m.whitelist.Remove(m.roomKey(ctx, roomID))
}

func (m *Manager) roomKey(ctx context.Context, roomID string) string {
	if m.directory == nil {
		return roomID
	}
	room, err := m.directory.Room(ctx, roomID)
	if err != nil {
		m.log.Warnf("⚠️ Комната %s не найдена: %v", roomID, err)
		return roomID
	}
	return room.Key()
}

func (m *Manager) save(roomID string, p *Poll) {
	if m.store == nil {
		return
	}
	if err := m.store.SavePoll(roomID, p); err != nil {
		m.log.Warnf("⚠️ Не удалось сохранить опрос %s: %v", roomID, err)
	}
}
