package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/luma/agi/protocol"
)

var errInvalidScript = errors.New("Invalid command script")

type step struct {
	Command protocol.Command
	Args    []interface{}
}

// parseCommandLines turns -c flags into steps.
func parseCommandLines(lines []string) ([]step, error) {
	steps := make([]step, 0, len(lines))

	for i, line := range lines {
		cmd, args := protocol.ParseCommandLine(line)
		if cmd == "" {
			return nil, fmt.Errorf("command %d is empty", i+1)
		}

		steps = append(steps, step{Command: cmd, Args: args})
	}

	return steps, nil
}

func loadScript(path string) ([]step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return parseScript(data)
}

// parseScript reads a JSON array of {"command": "...", "args": [...]}
// objects. A null argument is sent as an absent one, numbers keep their
// literal form.
func parseScript(data []byte) ([]step, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", errInvalidScript)
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of commands", errInvalidScript)
	}

	var (
		steps []step
		err   error
		index int
	)

	root.ForEach(func(_, entry gjson.Result) bool {
		index++

		name := entry.Get("command")
		if name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
			err = fmt.Errorf("%w: entry %d has no command", errInvalidScript, index)
			return false
		}

		s := step{Command: protocol.ParseCommand(name.Str)}

		args := entry.Get("args")
		if args.Exists() && !args.IsArray() {
			err = fmt.Errorf("%w: args of entry %d must be an array", errInvalidScript, index)
			return false
		}

		args.ForEach(func(_, arg gjson.Result) bool {
			s.Args = append(s.Args, scriptArg(arg))
			return true
		})

		steps = append(steps, s)
		return true
	})

	if err != nil {
		return nil, err
	}

	return steps, nil
}

func scriptArg(arg gjson.Result) interface{} {
	switch arg.Type {
	case gjson.Null:
		return nil
	case gjson.String:
		return arg.Str
	default:
		return arg.Raw
	}
}
