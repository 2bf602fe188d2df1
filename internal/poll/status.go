package poll

import (
	"encoding/json"
	"fmt"
)

// statusRecord: формат записи в статусной комнате. Реакций и служебных
// полей (id статус-сообщения, дата) в нём нет.
type statusRecord struct {
	Title            string    `json:"title"`
	BotName          string    `json:"botname"`
	OriginalMsgID    string    `json:"original_msg_id"`
	PollMsgID        *string   `json:"poll_msg_id"`
	Options          []*Option `json:"options"`
	AdditionalPeople []*Option `json:"additional_people"`
}

func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *UserSet) UnmarshalJSON(data []byte) error {
	var users []string
	if err := json.Unmarshal(data, &users); err != nil {
		return err
	}
	*s = NewUserSet(users...)
	return nil
}

func (p *Poll) MarshalJSON() ([]byte, error) {
	record := statusRecord{
		Title:            p.Title,
		BotName:          p.BotName,
		OriginalMsgID:    p.OriginalMsgID,
		Options:          p.Options,
		AdditionalPeople: p.AdditionalPeople,
	}
	if p.PollMsgID != "" {
		record.PollMsgID = &p.PollMsgID
	}
	if record.Options == nil {
		record.Options = []*Option{}
	}
	return json.Marshal(record)
}

// DecodeStatus восстанавливает опрос из статус-записи. Веса пересчитываются
// по слотам доп. людей.
func DecodeStatus(data []byte) (*Poll, error) {
	var record statusRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("poll: decode status: %w", err)
	}
	if len(record.Options) > MaxOptions {
		return nil, ErrTooManyOptions
	}

	p := &Poll{
		BotName:       record.BotName,
		OriginalMsgID: record.OriginalMsgID,
		Title:         record.Title,
		extra:         make(map[string]int),
	}
	if record.PollMsgID != nil {
		p.PollMsgID = *record.PollMsgID
	}
	for i, opt := range record.Options {
		if opt == nil {
			return nil, fmt.Errorf("poll: decode status: option %d is null", i)
		}
		if opt.Users == nil {
			opt.Users = NewUserSet()
		}
		p.Options = append(p.Options, opt)
	}
	for i, opt := range record.AdditionalPeople {
		if opt == nil {
			return nil, fmt.Errorf("poll: decode status: additional people entry %d is null", i)
		}
		weight, ok := numberEmojiValue[opt.Emoji]
		if !ok {
			return nil, fmt.Errorf("poll: decode status: unknown additional people emoji %q", opt.Emoji)
		}
		if opt.Users == nil {
			opt.Users = NewUserSet()
		}
		for u := range opt.Users {
			p.addWeight(u, weight)
		}
		p.AdditionalPeople = append(p.AdditionalPeople, opt)
	}
	return p, nil
}
