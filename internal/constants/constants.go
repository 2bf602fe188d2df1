package constants

// Ответы пользователям
const (
	MsgPollUsage     = "*Usage:*\n```poll <poll_title> <option_1> .. <option_26>```"
	MsgPushUsage     = "*Usage:*\n```poll_push #room```"
	MsgEtmUsage      = "*Usage:*\n```<etm | etlm> [<poll_option>...]```"
	MsgSpecifyRoom   = "Please specify a room"
	MsgNoActivePoll  = "Please create a poll first"
	MsgRoomNotFound  = "Room not found"
	MsgTooManyOption = "A poll can have at most 26 options"
	MsgBadArgs       = "Could not parse the arguments (unbalanced quotes?)"
	MsgUnknown       = "Unknown command. Available:\n```poll <poll_title> <option_1> .. <option_26>\npoll_push #room\netm [<poll_option>...]```"
)

// Названия команд
const (
	CmdPoll     = "poll"
	CmdPollPush = "poll_push"
	CmdEtm      = "etm"
	CmdEtlm     = "etlm"
)

// EtmTitle: заголовок опроса, который создают etm/etlm.
const EtmTitle = "ETM"
