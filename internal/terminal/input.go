package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrInterrupted is returned when input ends before a line was read.
var ErrInterrupted = errors.New("input closed")

// Input reads lines and passwords from the user
type Input struct {
	reader *bufio.Reader
	out    io.Writer
	fd     int
	isTTY  bool
}

// NewInput creates an input reading from stdin and echoing prompts to stdout
func NewInput() *Input {
	fd := int(os.Stdin.Fd())
	return &Input{
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		fd:     fd,
		isTTY:  term.IsTerminal(fd),
	}
}

// NewInputFrom creates an input over r. Passwords are read as plain lines.
func NewInputFrom(r io.Reader, out io.Writer) *Input {
	return &Input{reader: bufio.NewReader(r), out: out, fd: -1}
}

// ReadLine reads a line of input from the user
func (in *Input) ReadLine() (string, error) {
	line, err := in.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrInterrupted
		}
		return "", err
	}

	// Trim whitespace and newline
	return strings.TrimSpace(line), nil
}

// Prompt prints label and reads the answer
func (in *Input) Prompt(label string) (string, error) {
	fmt.Fprint(in.out, label)
	return in.ReadLine()
}

// ReadPassword prints label and reads a line without echo when stdin is a
// terminal.
func (in *Input) ReadPassword(label string) (string, error) {
	fmt.Fprint(in.out, label)
	if !in.isTTY {
		return in.ReadLine()
	}

	secret, err := term.ReadPassword(in.fd)
	fmt.Fprintln(in.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

// Confirm asks a yes/no question. Anything but y or yes is no.
func (in *Input) Confirm(label string) (bool, error) {
	answer, err := in.Prompt(label + " [y/N] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
