package bot

import (
	"context"
	"sync"
)

// Sequencer выстраивает команды одного семейства в очередь: тело
// следующей команды начинается только после Release предыдущей.
// Место в очереди фиксируется в момент Enter.
type Sequencer struct {
	mu    sync.Mutex
	tails map[string]*Ticket
}

func NewSequencer() *Sequencer {
	return &Sequencer{tails: make(map[string]*Ticket)}
}

// Ticket: место в очереди. Release обязателен на любом пути выхода.
type Ticket struct {
	seq  *Sequencer
	key  string
	prev <-chan struct{}
	done chan struct{}

	once    sync.Once
	waitErr bool
}

// Enter встаёт в очередь key и не блокирует.
func (s *Sequencer) Enter(key string) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Ticket{seq: s, key: key, done: make(chan struct{})}
	if tail, ok := s.tails[key]; ok {
		t.prev = tail.done
	}
	s.tails[key] = t
	return t
}

// Wait ждёт, пока отпустят предыдущий билет.
func (t *Ticket) Wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		t.seq.mu.Lock()
		t.waitErr = true
		t.seq.mu.Unlock()
		return ctx.Err()
	}
}

// Release отпускает билет. Повторный вызов ничего не делает.
// Если ожидание прервали, очередь передаётся дальше только после
// того, как отпустят предыдущий билет.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.seq.mu.Lock()
		cancelled := t.waitErr
		t.seq.mu.Unlock()

		if cancelled && t.prev != nil {
			go func() {
				<-t.prev
				t.finish()
			}()
			return
		}
		t.finish()
	})
}

func (t *Ticket) finish() {
	t.seq.mu.Lock()
	if t.seq.tails[t.key] == t {
		delete(t.seq.tails, t.key)
	}
	t.seq.mu.Unlock()
	close(t.done)
}

// Do выполняет fn в своей очереди. Ошибка fn возвращается как есть,
// билет отпускается в любом случае.
func (s *Sequencer) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	t := s.Enter(key)
	defer t.Release()
	if err := t.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}
