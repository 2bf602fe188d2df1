package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "Lunch Pizza Salad", []string{"Lunch", "Pizza", "Salad"}},
		{"quoted", `"Where to eat" Pizza "Green salad"`, []string{"Where to eat", "Pizza", "Green salad"}},
		{"typographic", "„Where to eat“ ”Green salad”", []string{"Where to eat", "Green salad"}},
		{"single quotes", "‘Mensa today’ 11:30", []string{"Mensa today", "11:30"}},
		{"empty quoted", `Lunch "" Pizza`, []string{"Lunch", "Pizza"}},
		{"empty", "   ", []string{}},
		{"hash options", `Vote "Room A" #2 "Room C"`, []string{"Vote", "Room A", "#2", "Room C"}},
		{"only hashes", "Lunch #1 #2", []string{"Lunch", "#1", "#2"}},
		{"hash inside quotes", `"Room #3" a#b`, []string{"Room #3", "a#b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgs_Unterminated(t *testing.T) {
	_, err := ParseArgs(`"Lunch Pizza`)
	assert.Error(t, err)
}

func TestParseRoomArg(t *testing.T) {
	room, ok := ParseRoomArg("  #general now")
	require.True(t, ok)
	assert.Equal(t, "general", room)

	_, ok = ParseRoomArg("general")
	assert.False(t, ok)
	_, ok = ParseRoomArg("")
	assert.False(t, ok)
}

func TestSplitCommand(t *testing.T) {
	cmd, args := SplitCommand("  poll Lunch  Pizza ")
	assert.Equal(t, "poll", cmd)
	assert.Equal(t, "Lunch  Pizza", args)

	cmd, args = SplitCommand("etm")
	assert.Equal(t, "etm", cmd)
	assert.Empty(t, args)

	cmd, _ = SplitCommand("")
	assert.Empty(t, cmd)
}
