package cli

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"resumetailor/internal/common"
	"resumetailor/internal/conversation"
	"resumetailor/internal/errors"
	"resumetailor/internal/formatters"
	"resumetailor/internal/session"
	"resumetailor/internal/types"
)

const (
	endOfText  = "."
	maxLineLen = 1024 * 1024
)

const replHelp = `Commands:
  /load <file>   send the text of a .txt, .md, .pdf or .docx file
  /save <file>   write the transcript (format from the extension or --format)
  /help          show this help
  /quit          leave the chat
Type "New Resume" at any time to start over.`

// repl runs one conversation over a line-oriented terminal.
type repl struct {
	lines   *lineReader
	out     io.Writer
	engine  common.TurnHandler
	files   *common.FileProcessor
	output  *common.OutputHandler
	botName string
	format  string
	logger  *errors.Logger
}

// Run greets and then alternates reading input and printing events until
// /quit, end of input or cancellation.
func (r *repl) Run(ctx context.Context, s *session.Session) error {
	r.print(r.engine.Start(s))

	for {
		input, err := r.read(ctx, s.Step)
		switch {
		case stderrors.Is(err, io.EOF), stderrors.Is(err, context.Canceled):
			fmt.Fprintln(r.out, "\nGoodbye.")
			return nil
		case err != nil:
			return err
		}

		if name, arg, ok := parseCommand(input); ok {
			text, quit := r.command(s, name, arg)
			if quit {
				fmt.Fprintln(r.out, "Goodbye.")
				return nil
			}
			if text == "" {
				continue
			}
			input = text
		}

		r.print(r.engine.Handle(ctx, s, input))
	}
}

// read collects one input. Steps that take pasted text read until a line
// holding only "."; the others take a single line.
func (r *repl) read(ctx context.Context, step session.Step) (string, error) {
	if !conversation.AffordancesFor(step).TextInput {
		fmt.Fprint(r.out, "> ")
		return r.lines.next(ctx)
	}

	fmt.Fprintf(r.out, "(paste text, finish with a line containing only %q, or /load <file>)\n", endOfText)
	var collected []string
	for {
		line, err := r.lines.next(ctx)
		if stderrors.Is(err, io.EOF) && len(collected) > 0 {
			return strings.Join(collected, "\n"), nil
		}
		if err != nil {
			return "", err
		}
		if len(collected) == 0 && (strings.HasPrefix(line, "/") || isRestart(line)) {
			return line, nil
		}
		if strings.TrimSpace(line) == endOfText {
			return strings.Join(collected, "\n"), nil
		}
		collected = append(collected, line)
	}
}

func isRestart(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), conversation.RestartCommand)
}

// command runs a slash command. It returns text to send as input, if any.
func (r *repl) command(s *session.Session, name, arg string) (string, bool) {
	switch name {
	case "quit", "exit":
		return "", true
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "load":
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: /load <file>")
			return "", false
		}
		text, err := r.files.ReadFile(arg)
		if err != nil {
			r.logger.LogError(err, "Failed to load file", "file", arg)
			fmt.Fprintf(r.out, "Could not load %s: %v\n", arg, err)
			return "", false
		}
		fmt.Fprintf(r.out, "Loaded %d characters from %s\n", len(text), arg)
		return text, false
	case "save":
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: /save <file>")
			return "", false
		}
		cfg := common.CommandConfig{OutputFile: arg, OutputFormat: formatters.FormatForFile(arg, r.format)}
		if err := r.output.HandleOutput(types.NewTranscript(r.botName, s.Snapshot()), cfg); err != nil {
			fmt.Fprintf(r.out, "Could not save transcript: %v\n", err)
			return "", false
		}
		fmt.Fprintf(r.out, "Transcript saved to %s (%s)\n", arg, cfg.OutputFormat)
	default:
		fmt.Fprintf(r.out, "Unknown command /%s. Type /help for the list.\n", name)
	}
	return "", false
}

func (r *repl) print(events iter.Seq[conversation.Event]) {
	label := formatters.SpeakerLabel(session.SpeakerBot, r.botName)
	for ev := range events {
		switch ev.Kind {
		case conversation.KindUser:
			continue
		case conversation.KindStatus:
			fmt.Fprintf(r.out, "%s: %s\n", label, ev.Entry.Text)
		case conversation.KindDownload:
			fmt.Fprintf(r.out, "%s: %s\n  %s\n\n", label, ev.Entry.Text, ev.Artifact.Path)
		default:
			fmt.Fprintf(r.out, "%s: %s\n\n", label, ev.Entry.Text)
		}
	}
}

func parseCommand(input string) (name, arg string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "\n") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(trimmed[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), name != ""
}

// lineReader scans lines on its own goroutine so a blocked read does not
// outlive cancellation.
type lineReader struct {
	lines chan string
	err   error
}

func newLineReader(in io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string)}
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxLineLen)
		for scanner.Scan() {
			lr.lines <- scanner.Text()
		}
		lr.err = scanner.Err()
		close(lr.lines)
	}()
	return lr
}

func (lr *lineReader) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lr.lines:
		if !ok {
			if lr.err != nil {
				return "", lr.err
			}
			return "", io.EOF
		}
		return line, nil
	}
}
