package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// console reads answers from the user. Prompts are only shown when
// interactive is set.
type console struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: isTerminal(in) && isTerminal(out),
	}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readLine returns one trimmed line. EOF with no input is reported as io.EOF.
func (c *console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptDestination asks for the download directory, keeping def on an
// empty answer
func (c *console) promptDestination(def string) (string, error) {
	fmt.Fprintf(c.out, "Enter root path [default='%s']: ", def)
	answer, err := c.readLine()
	if err == io.EOF {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read destination: %w", err)
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// confirmDownload waits for enter. Closed input or an explicit "n" declines.
func (c *console) confirmDownload(count int) bool {
	fmt.Fprintf(c.out, "Press enter to start downloading %d sample packs.", count)
	answer, err := c.readLine()
	fmt.Fprintln(c.out)
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "n", "no":
		return false
	}
	return true
}
