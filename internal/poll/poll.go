package poll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fachschaft/rocketbot/internal/chat"
)

var (
	ErrTooManyOptions = fmt.Errorf("poll: more than %d options", MaxOptions)
	ErrNoPollMessage  = errors.New("poll: no poll message to update")
	ErrNoActivePoll   = errors.New("poll: no active poll")
)

// LetterEmojis: реакции вариантов ответа, выдаются по порядку создания.
var LetterEmojis = func() []string {
	emojis := make([]string, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		emojis = append(emojis, fmt.Sprintf(":regional_indicator_%c:", c))
	}
	return emojis
}()

// MaxOptions: по одной букве на вариант.
var MaxOptions = len(LetterEmojis)

// NumberEmojis: слоты "со мной придут ещё N человек".
var NumberEmojis = []string{":x1:", ":x2:", ":x3:", ":x4:"}

var numberEmojiValue = map[string]int{
	":x1:": 1,
	":x2:": 2,
	":x3:": 3,
	":x4:": 4,
}

// UserSet: множество логинов. В JSON пишется отсортированным списком.
type UserSet map[string]struct{}

func NewUserSet(users ...string) UserSet {
	s := make(UserSet, len(users))
	for _, u := range users {
		s[u] = struct{}{}
	}
	return s
}

func (s UserSet) Has(user string) bool {
	_, ok := s[user]
	return ok
}

func (s UserSet) Sorted() []string {
	users := make([]string, 0, len(s))
	for u := range s {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Option: вариант ответа (или слот доп. людей) и кто его выбрал.
type Option struct {
	Text  string  `json:"text"`
	Emoji string  `json:"emoji"`
	Users UserSet `json:"users"`
}

// Poll: опрос на реакциях. Бот ставит свою реакцию на каждый вариант,
// поэтому его логин лежит во всех множествах, но в подсчёт не идёт.
type Poll struct {
	BotName       string
	OriginalMsgID string
	Title         string
	CreatedOn     time.Time

	PollMsgID   string
	StatusMsgID string

	Options          []*Option
	AdditionalPeople []*Option

	// extra: сумма занятых слотов доп. людей; вес = 1 + extra
	extra map[string]int
}

func New(botName, originalMsgID, title string, options []string, createdOn time.Time) (*Poll, error) {
	if len(options) > MaxOptions {
		return nil, ErrTooManyOptions
	}
	p := &Poll{
		BotName:       botName,
		OriginalMsgID: originalMsgID,
		Title:         title,
		CreatedOn:     createdOn,
		extra:         make(map[string]int),
	}
	for i, text := range options {
		p.Options = append(p.Options, &Option{Text: text, Emoji: LetterEmojis[i], Users: NewUserSet(botName)})
	}
	for _, emoji := range NumberEmojis {
		p.AdditionalPeople = append(p.AdditionalPeople, &Option{Emoji: emoji, Users: NewUserSet(botName)})
	}
	return p, nil
}

// AddOption дописывает вариант со следующей буквой. false: если букв
// больше нет или такой текст уже есть.
func (p *Poll) AddOption(text string) bool {
	if len(p.Options) >= MaxOptions {
		return false
	}
	for _, opt := range p.Options {
		if opt.Text == text {
			return false
		}
	}
	p.Options = append(p.Options, &Option{
		Text:  text,
		Emoji: LetterEmojis[len(p.Options)],
		Users: NewUserSet(p.BotName),
	})
	return true
}

// IsSameDayTitledAs: тот же заголовок и опрос создан сегодня (в часовом поясе now).
func (p *Poll) IsSameDayTitledAs(title string, now time.Time) bool {
	if p.Title != title {
		return false
	}
	created := p.CreatedOn.In(now.Location())
	y1, m1, d1 := created.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Weight: сколько человек засчитывается за пользователя.
func (p *Poll) Weight(user string) int {
	return 1 + p.extra[user]
}

// Reconcile приводит множества к снимку реакций. Возвращает true, если
// что-то поменялось и сообщение надо перерисовать.
func (p *Poll) Reconcile(reactions chat.Reactions) bool {
	changed := false
	for _, opt := range p.Options {
		if p.apply(opt, reactions[opt.Emoji], 0) {
			changed = true
		}
	}
	for _, opt := range p.AdditionalPeople {
		if p.apply(opt, reactions[opt.Emoji], numberEmojiValue[opt.Emoji]) {
			changed = true
		}
	}
	return changed
}

func (p *Poll) apply(opt *Option, incoming []string, weight int) bool {
	current := NewUserSet(incoming...)

	var missing, added []string
	for u := range opt.Users {
		if !current.Has(u) {
			missing = append(missing, u)
		}
	}
	for u := range current {
		if !opt.Users.Has(u) {
			added = append(added, u)
		}
	}

	for _, u := range missing {
		delete(opt.Users, u)
		p.addWeight(u, -weight)
	}
	for _, u := range added {
		opt.Users[u] = struct{}{}
		p.addWeight(u, weight)
	}
	return len(missing) > 0 || len(added) > 0
}

func (p *Poll) addWeight(user string, delta int) {
	// бот не голосует, его вес не ведём
	if delta == 0 || user == p.BotName {
		return
	}
	if p.extra == nil {
		p.extra = make(map[string]int)
	}
	p.extra[user] += delta
	if p.extra[user] == 0 {
		delete(p.extra, user)
	}
}

// ReactionSeed: текущие множества в виде реакций для сообщения опроса.
func (p *Poll) ReactionSeed() chat.Reactions {
	reactions := make(chat.Reactions, len(p.Options)+len(p.AdditionalPeople))
	for _, opt := range p.Options {
		reactions[opt.Emoji] = opt.Users.Sorted()
	}
	for _, opt := range p.AdditionalPeople {
		reactions[opt.Emoji] = opt.Users.Sorted()
	}
	return reactions
}

// NameLookup отдаёт отображаемое имя по логину.
type NameLookup func(ctx context.Context, username string) (string, error)

// Render собирает текст сообщения опроса. Если имя не нашлось,
// пишется логин.
func (p *Poll) Render(ctx context.Context, lookup NameLookup) string {
	names := make(map[string]string)
	name := func(user string) string {
		if n, ok := names[user]; ok {
			return n
		}
		n := user
		if lookup != nil {
			if found, err := lookup(ctx, user); err == nil && found != "" {
				n = found
			}
		}
		names[user] = n
		return n
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", p.Title)
	for _, opt := range p.Options {
		var voters []string
		sum := 0
		for _, u := range opt.Users.Sorted() {
			if u == p.BotName {
				continue
			}
			w := p.Weight(u)
			sum += w
			voters = append(voters, fmt.Sprintf("%s[%d]", name(u), w))
		}
		fmt.Fprintf(&b, "*%s %s [%d]*\n%s\n\n", opt.Emoji, opt.Text, sum, strings.Join(voters, ", "))
	}
	return b.String()
}
