package utils

import (
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// типографские кавычки, которые подставляют клиенты вместо "
var quoteRegex = regexp.MustCompile(`[„“'”‘’]`)

var roomRegex = regexp.MustCompile(`^\s*#(\S+)`)

// ParseArgs разбивает строку аргументов как shell: кавычки группируют слова.
// Пустые аргументы отбрасываются, # комментарием не считается.
func ParseArgs(s string) ([]string, error) {
	normalized := escapeHashes(quoteRegex.ReplaceAllString(s, `"`))
	parts, err := shlex.Split(normalized)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		args = append(args, p)
	}
	return args, nil
}

// escapeHashes экранирует # вне кавычек, иначе shlex отрежет хвост строки.
func escapeHashes(s string) string {
	if !strings.Contains(s, "#") {
		return s
	}
	var b strings.Builder
	quoted, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == '#' && !quoted:
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseRoomArg достаёт имя комнаты из "#room ...".
func ParseRoomArg(s string) (string, bool) {
	match := roomRegex.FindStringSubmatch(s)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// SplitCommand делит текст сообщения на команду и остаток.
func SplitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	idx := strings.IndexFunc(text, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx+1:])
}
