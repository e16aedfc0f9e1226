package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cases := []struct {
		text      string
		cmd       string
		args      []string
		isCommand bool
	}{
		{"/start", "start", nil, true},
		{"/start@prizebot", "start", nil, true},
		{"!рейтинг", "рейтинг", nil, true},
		{".баланс", "баланс", nil, true},
		{"/купить 5", "купить", []string{"5"}, true},
		{"/set reveal_interval 30m", "set", []string{"reveal_interval", "30m"}, true},
		{"  /help  ", "help", nil, true},
		{"/КУПИТЬ 5", "купить", []string{"5"}, true},
		{"привет", "", nil, false},
		{"", "", nil, false},
		{"/", "", nil, false},
		{"!  ", "", nil, false},
	}

	for _, tc := range cases {
		cmd, args, isCommand := p.ParseCommand(tc.text)
		assert.Equal(t, tc.isCommand, isCommand, "text=%q", tc.text)
		assert.Equal(t, tc.cmd, cmd, "text=%q", tc.text)
		assert.Equal(t, tc.args, args, "text=%q", tc.text)
	}
}
