package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// prompt writes label and reads one line of input. The returned line is
// trimmed. io.EOF is returned only when no input at all was read.
func prompt(r *bufio.Reader, w io.Writer, label string) (string, error) {
	fmt.Fprint(w, label)

	input, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
