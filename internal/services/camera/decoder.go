package camera

import (
	"bufio"
	"context"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxPayloadBytes = 8 * 1024

// LineDecoder reads scanners that emit one decoded payload per line.
// Blank or unprintable lines are reported as non-detections.
type LineDecoder struct{}

func NewLineDecoder() (Decoder, error) {
	return LineDecoder{}, nil
}

func (LineDecoder) Decode(ctx context.Context, r io.Reader, emit func(Detection)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), maxPayloadBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimRight(scanner.Text(), "\r")
		if printable(text) {
			emit(Detection{Text: text, Found: true})
		} else {
			emit(Detection{})
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

func (LineDecoder) Close() error {
	return nil
}

func printable(s string) bool {
	if strings.TrimSpace(s) == "" || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) && r != '\t' {
			return false
		}
	}
	return true
}
