package protocol

import (
	"fmt"
	"strings"
)

// Command is a normalised AGI command name, e.g. "STREAM FILE".
type Command string

const (
	Answer            Command = "ANSWER"
	AsyncAGIBreak     Command = "ASYNCAGI BREAK"
	ChannelStatus     Command = "CHANNEL STATUS"
	ControlStreamFile Command = "CONTROL STREAM FILE"
	DatabaseDel       Command = "DATABASE DEL"
	DatabaseDelTree   Command = "DATABASE DELTREE"
	DatabaseGet       Command = "DATABASE GET"
	DatabasePut       Command = "DATABASE PUT"
	Exec              Command = "EXEC"
	GetData           Command = "GET DATA"
	GetFullVariable   Command = "GET FULL VARIABLE"
	GetOption         Command = "GET OPTION"
	GetVariable       Command = "GET VARIABLE"
	Gosub             Command = "GOSUB"
	Hangup            Command = "HANGUP"
	Noop              Command = "NOOP"
	ReceiveChar       Command = "RECEIVE CHAR"
	ReceiveText       Command = "RECEIVE TEXT"
	RecordFile        Command = "RECORD FILE"
	SayAlpha          Command = "SAY ALPHA"
	SayDate           Command = "SAY DATE"
	SayDateTime       Command = "SAY DATETIME"
	SayDigits         Command = "SAY DIGITS"
	SayNumber         Command = "SAY NUMBER"
	SayPhonetic       Command = "SAY PHONETIC"
	SayTime           Command = "SAY TIME"
	SendImage         Command = "SEND IMAGE"
	SendText          Command = "SEND TEXT"
	SetAutoHangup     Command = "SET AUTOHANGUP"
	SetCallerID       Command = "SET CALLERID"
	SetContext        Command = "SET CONTEXT"
	SetExtension      Command = "SET EXTENSION"
	SetMusic          Command = "SET MUSIC"
	SetPriority       Command = "SET PRIORITY"
	SetVariable       Command = "SET VARIABLE"

	SpeechActivateGrammar   Command = "SPEECH ACTIVATE GRAMMAR"
	SpeechCreate            Command = "SPEECH CREATE"
	SpeechDeactivateGrammar Command = "SPEECH DEACTIVATE GRAMMAR"
	SpeechDestroy           Command = "SPEECH DESTROY"
	SpeechLoadGrammar       Command = "SPEECH LOAD GRAMMAR"
	SpeechRecognize         Command = "SPEECH RECOGNIZE"
	SpeechSet               Command = "SPEECH SET"
	SpeechUnloadGrammar     Command = "SPEECH UNLOAD GRAMMAR"

	StreamFile   Command = "STREAM FILE"
	TDDMode      Command = "TDD MODE"
	Verbose      Command = "VERBOSE"
	WaitForDigit Command = "WAIT FOR DIGIT"
)

// Unbounded marks an ArgShape without an upper limit.
const Unbounded = -1

// ArgShape is the number of arguments a command accepts.
type ArgShape struct {
	Min int
	Max int
}

func (s ArgShape) accepts(n int) bool {
	return n >= s.Min && (s.Max == Unbounded || n <= s.Max)
}

func (s ArgShape) String() string {
	switch {
	case s.Max == Unbounded:
		return fmt.Sprintf("at least %d", s.Min)
	case s.Min == s.Max:
		return fmt.Sprintf("exactly %d", s.Min)
	default:
		return fmt.Sprintf("%d to %d", s.Min, s.Max)
	}
}

var argShapes = map[Command]ArgShape{
	Answer:            {0, 0},
	AsyncAGIBreak:     {0, 0},
	ChannelStatus:     {0, 1},
	ControlStreamFile: {2, 7},
	DatabaseDel:       {2, 2},
	DatabaseDelTree:   {1, 2},
	DatabaseGet:       {2, 2},
	DatabasePut:       {3, 3},
	Exec:              {1, Unbounded},
	GetData:           {1, 3},
	GetFullVariable:   {1, 2},
	GetOption:         {2, 3},
	GetVariable:       {1, 1},
	Gosub:             {2, Unbounded},
	Hangup:            {0, 1},
	Noop:              {0, Unbounded},
	ReceiveChar:       {1, 1},
	ReceiveText:       {1, 1},
	RecordFile:        {4, 7},
	SayAlpha:          {2, 2},
	SayDate:           {2, 2},
	SayDateTime:       {2, 4},
	SayDigits:         {2, 2},
	SayNumber:         {2, 3},
	SayPhonetic:       {2, 2},
	SayTime:           {2, 2},
	SendImage:         {1, 1},
	SendText:          {1, 1},
	SetAutoHangup:     {1, 1},
	SetCallerID:       {1, 1},
	SetContext:        {1, 1},
	SetExtension:      {1, 1},
	SetMusic:          {1, 2},
	SetPriority:       {1, 1},
	SetVariable:       {2, 2},

	SpeechActivateGrammar:   {1, 1},
	SpeechCreate:            {1, 1},
	SpeechDeactivateGrammar: {1, 1},
	SpeechDestroy:           {0, 0},
	SpeechLoadGrammar:       {2, 2},
	SpeechRecognize:         {2, 3},
	SpeechSet:               {2, 2},
	SpeechUnloadGrammar:     {1, 1},

	StreamFile:   {2, 3},
	TDDMode:      {1, 1},
	Verbose:      {1, 2},
	WaitForDigit: {1, 1},
}

// ParseCommand normalises a command name. Names are case-insensitive and
// underscores stand in for spaces, so "say_time" becomes "SAY TIME".
func ParseCommand(name string) Command {
	name = strings.ToUpper(strings.TrimSpace(name))
	return Command(strings.ReplaceAll(name, "_", " "))
}

// Shape returns the argument shape of a well-known command. ok is false for
// commands outside the table, which are passed through unvalidated.
func (c Command) Shape() (shape ArgShape, ok bool) {
	shape, ok = argShapes[c]
	return shape, ok
}

// Known returns true if the command is in the table of well-known commands.
func (c Command) Known() bool {
	_, ok := argShapes[c]
	return ok
}

// Validate checks the argument count of well-known commands.
func (c Command) Validate(args []interface{}) error {
	shape, ok := c.Shape()
	if !ok || shape.accepts(len(args)) {
		return nil
	}

	return fmt.Errorf("%s takes %s arguments, got %d: %w",
		string(c), shape, len(args), ErrInvalidArguments)
}

func (c Command) String() string {
	return string(c)
}

// ParseCommandLine splits a command line as typed by a person, e.g.
// `say_time 1700000000 ""`, into a command and its arguments. The longest
// run of leading words that names a well-known command is taken as the
// name, otherwise just the first word. Arguments are split on whitespace
// and an EmptyArg token becomes an absent argument.
func ParseCommandLine(line string) (Command, []interface{}) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	words := 1
	for n := len(fields); n > 1; n-- {
		if ParseCommand(strings.Join(fields[:n], " ")).Known() {
			words = n
			break
		}
	}

	cmd := ParseCommand(strings.Join(fields[:words], " "))

	args := make([]interface{}, 0, len(fields)-words)
	for _, field := range fields[words:] {
		if field == EmptyArg {
			args = append(args, nil)
			continue
		}

		args = append(args, field)
	}

	return cmd, args
}
