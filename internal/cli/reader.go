package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// answerReader reads confirmation answers one line at a time. A read
// abandoned on cancellation stays pending and is returned by the next call,
// so an answer typed late is not lost. Not safe for concurrent use.
type answerReader struct {
	reader  *bufio.Reader
	pending chan readResult
}

type readResult struct {
	err  error
	text string
}

func newAnswerReader(r io.Reader) *answerReader {
	return &answerReader{reader: bufio.NewReader(r)}
}

// ReadAnswer returns the next line trimmed of surrounding whitespace. A last
// line without a newline is still an answer; io.EOF means nothing was typed.
func (r *answerReader) ReadAnswer(ctx context.Context) (string, error) {
	if r.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := r.reader.ReadString('\n')
			if errors.Is(err, io.EOF) && line != "" {
				err = nil
			}
			ch <- readResult{text: strings.TrimSpace(line), err: err}
		}()
		r.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case a := <-r.pending:
		r.pending = nil
		return a.text, a.err
	}
}
