package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/luma/agi/client"
	"github.com/luma/agi/internal/env"
	"github.com/luma/agi/protocol"
	"github.com/luma/agi/transport"
)

var (
	// Command lines given with -c
	execCommands []string

	// Path to a JSON command script
	execScript string

	// Where responses are reported, stderr when empty
	execOut string

	// Overrides AGI_COMMAND_TIMEOUT
	execTimeout time.Duration
)

func init() {
	flags := ExecCmd.Flags()

	flags.StringArrayVarP(&execCommands, "command", "c", nil, "A command to send, e.g. 'stream file welcome \"\"'. Repeat for more")
	flags.StringVarP(&execScript, "script", "s", "", "A JSON file of commands to send")
	flags.StringVarP(&execOut, "out", "o", "", "Write responses to this file instead of stderr")
	flags.DurationVarP(&execTimeout, "timeout", "t", 0, "How long each command may take, 0 waits forever")
}

var ExecCmd = &cobra.Command{
	Use:   "exec",
	Short: "Send AGI commands to the channel",
	Long: `Send AGI commands to the channel

Reads the channel's variables, then sends each command in turn and reports
its response as a JSON line. Stops at the first failure. A hangup signal
ends the session.

Commands come from -c flags, or from a script of the form

	[{"command": "stream file", "args": ["welcome", null]}]

where null is sent as an absent argument.

Usage
	agi exec -c answer -c 'say time 1700000000 ""' -c hangup
	agi exec --script ivr.json --timeout 30s

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(cmd.Context(), syscall.SIGHUP, os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf)
		if err != nil {
			return err
		}
		defer log.Sync()

		steps, err := loadSteps()
		if err != nil {
			return err
		}

		timeout := conf.CommandTimeout
		if cmd.Flags().Changed("timeout") {
			timeout = execTimeout
		}

		out, closeOut, err := openOutput(cmd, execOut)
		if err != nil {
			return err
		}

		defer func() {
			err = multierr.Append(err, closeOut())
		}()

		in, closeIn := channelInput(cmd, log)
		defer closeIn()

		stream := transport.NewStream(in, cmd.OutOrStdout())

		session, err := client.NewSession(ctx, stream, client.Options{
			Trace: conf.Trace,
			Log:   log.Named("session"),
		})
		if err != nil {
			return err
		}

		channel, _ := session.Get("channel")
		log.Info("Running commands",
			zap.String("session", session.ID),
			zap.String("channel", channel),
			zap.Int("commands", len(steps)),
			zap.Duration("timeout", timeout))

		session.OnShutdown(client.ShutdownFunc(func(ctx context.Context, reason error) error {
			if reason != nil {
				log.Warn("Session ended early", zap.String("session", session.ID), zap.Error(reason))
				return nil
			}

			log.Info("Session finished", zap.String("session", session.ID))
			return nil
		}))

		runErr := runSteps(ctx, session, steps, timeout, out)

		return multierr.Append(runErr, session.Shutdown(context.Background(), runErr))
	},
}

// channelInput returns stdin in a mode where a hangup signal can interrupt
// a blocked read, so the session ends instead of waiting for Asterisk.
func channelInput(cmd *cobra.Command, log *zap.Logger) (io.Reader, func()) {
	in := cmd.InOrStdin()

	f, ok := in.(*os.File)
	if !ok {
		return in, func() {}
	}

	if term.IsTerminal(int(f.Fd())) {
		log.Warn("stdin is a terminal, type the AGI variables followed by an empty line")
		return in, func() {}
	}

	pollable, err := transport.Pollable(f)
	if err != nil {
		log.Warn("stdin can't be interrupted, a hangup only ends the session at the next line", zap.Error(err))
		return in, func() {}
	}

	return pollable, func() { pollable.Close() }
}

func loadSteps() ([]step, error) {
	if execScript != "" && len(execCommands) > 0 {
		return nil, errors.New("Pass either --command or --script, not both")
	}

	if execScript != "" {
		return loadScript(execScript)
	}

	if len(execCommands) == 0 {
		return nil, errors.New("Nothing to send, pass --command or --script")
	}

	return parseCommandLines(execCommands)
}

// runSteps sends each step and writes its response, plus the command, as
// a JSON line to out.
func runSteps(ctx context.Context, session *client.Session, steps []step, timeout time.Duration, out io.Writer) error {
	for _, s := range steps {
		resp, err := execStep(ctx, session, s, timeout)
		if err != nil {
			return err
		}

		line, err := resp.MarshalJSON()
		if err != nil {
			return err
		}

		line, err = sjson.SetBytes(line, "command", s.Command.String())
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintln(out, string(line)); err != nil {
			return err
		}
	}

	return nil
}

func execStep(ctx context.Context, session *client.Session, s step, timeout time.Duration) (*protocol.Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return session.Exec(ctx, s.Command, s.Args...)
}
