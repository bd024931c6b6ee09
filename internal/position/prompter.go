package position

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrQuit is returned when the operator ends the session
var ErrQuit = errors.New("quit")

// Prompter reads coordinates typed by the operator, one per line
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

// Next asks for a value of axis. Invalid numbers are reported and asked for
// again; "q" or the end of input returns ErrQuit.
func (p *Prompter) Next(axis Axis) (float64, error) {
	return p.Value(fmt.Sprintf("Enter value for %s (%s)", axis, axis.Unit()))
}

// Value asks for a number using label as the prompt
func (p *Prompter) Value(label string) (float64, error) {
	for {
		fmt.Fprintf(p.out, "\n%s or \"q\" to quit: ", label)

		if !p.in.Scan() {
			if err := p.in.Err(); err != nil {
				return 0, fmt.Errorf("error reading input: %w", err)
			}
			return 0, ErrQuit
		}

		line := strings.TrimSpace(p.in.Text())
		if strings.EqualFold(line, "q") {
			return 0, ErrQuit
		}

		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			fmt.Fprintln(p.out, "Invalid number")
			continue
		}
		return v, nil
	}
}

// Confirm waits for the operator to press Enter. End of input returns ErrQuit.
func (p *Prompter) Confirm(message string) error {
	fmt.Fprintf(p.out, "%s ", message)

	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return fmt.Errorf("error reading input: %w", err)
		}
		return ErrQuit
	}
	return nil
}
