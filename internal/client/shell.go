package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

const prompt = "Enter Command: "

const helpText = `
Command List:
connect <ws uri>
show <connection id>
close <connection id> [close code] [reason]
send <connection id> <message>
help: Display help text
quit: Exit the program
`

// Shell reads commands line by line and drives an Endpoint.
type Shell struct {
	endpoint *Endpoint
	out      io.Writer
}

// NewShell creates a Shell writing its output to out.
func NewShell(endpoint *Endpoint, out io.Writer) *Shell {
	return &Shell{endpoint: endpoint, out: out}
}

// Run prompts for and executes commands from in until quit, end of input or
// cancellation of ctx, then closes every open connection.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	stop := make(chan struct{})
	defer close(stop)
	lines, scanErr := readLines(in, stop)

	var err error
loop:
	for {
		fmt.Fprint(s.out, prompt)
		select {
		case line, ok := <-lines:
			if !ok {
				err = <-scanErr
				break loop
			}
			if s.Execute(ctx, line) {
				break loop
			}
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			break loop
		}
	}

	for _, id := range s.endpoint.Shutdown() {
		fmt.Fprintf(s.out, "> Closing connection %d\n", id)
	}
	return err
}

// readLines scans in on its own goroutine so a blocked read never holds up
// Run. The lines channel is closed at end of input, after the scan error is sent.
func readLines(in io.Reader, stop <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()
	return lines, scanErr
}

// Execute runs one command line and reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	line = strings.TrimLeft(strings.TrimRight(line, "\r\n"), " \t")
	cmd, args, _ := strings.Cut(line, " ")

	switch cmd {
	case "quit", "-q":
		return true
	case "help", "-h":
		fmt.Fprint(s.out, helpText)
	case "connect":
		s.connect(ctx, strings.TrimSpace(args))
	case "show":
		s.show(args)
	case "close":
		s.close(args)
	case "send":
		s.send(args)
	case "":
	default:
		fmt.Fprintln(s.out, "Unrecognized command")
	}
	return false
}

func (s *Shell) connect(ctx context.Context, uri string) {
	if uri == "" {
		fmt.Fprintln(s.out, "> Usage: connect <ws uri>")
		return
	}

	id, err := s.endpoint.Connect(ctx, uri)
	fmt.Fprintf(s.out, "> Created connection with id: %d\n", id)
	if err != nil {
		fmt.Fprintf(s.out, "> Connection %d failed: %v\n", id, err)
	}
}

func (s *Shell) show(args string) {
	id, ok := s.parseID(strings.TrimSpace(args))
	if !ok {
		return
	}

	metadata, found := s.endpoint.Metadata(id)
	if !found {
		fmt.Fprintf(s.out, "> Unrecognized connection id: %d\n", id)
		return
	}
	fmt.Fprint(s.out, metadata.String())
}

// close parses "<id> [code] [reason]". The code defaults to a normal closure.
func (s *Shell) close(args string) {
	idArg, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	id, ok := s.parseID(idArg)
	if !ok {
		return
	}

	code := websocket.CloseNormalClosure
	reason := ""
	if rest = strings.TrimSpace(rest); rest != "" {
		codeArg, reasonArg, _ := strings.Cut(rest, " ")
		parsed, err := strconv.Atoi(codeArg)
		if err != nil || !ValidCloseCode(parsed) {
			fmt.Fprintf(s.out, "> Invalid close code: %q\n", codeArg)
			return
		}
		code = parsed
		reason = strings.TrimSpace(reasonArg)
	}

	if err := s.endpoint.Close(id, code, reason); err != nil {
		s.reportError("Error initiating close", id, err)
	}
}

// send parses "<id> <message>"; the message is everything after the id.
func (s *Shell) send(args string) {
	idArg, message, _ := strings.Cut(strings.TrimLeft(args, " "), " ")
	id, ok := s.parseID(idArg)
	if !ok {
		return
	}

	if err := s.endpoint.Send(id, message); err != nil {
		s.reportError("Error sending message", id, err)
	}
}

func (s *Shell) parseID(arg string) (int, bool) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Fprintf(s.out, "> Invalid connection id: %q\n", arg)
		return 0, false
	}
	return id, true
}

func (s *Shell) reportError(action string, id int, err error) {
	if errors.Is(err, ErrUnknownConnection) {
		fmt.Fprintf(s.out, "> No connection found with id %d\n", id)
		return
	}
	fmt.Fprintf(s.out, "> %s: %v\n", action, err)
}
