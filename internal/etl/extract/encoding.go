// Package extract unpacks quarterly archives into canonical expense records.
package extract

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SampleSize is how many bytes of each table are inspected for encoding and delimiter.
const SampleSize = 4096

// Encoding is a candidate text encoding for a regulator export.
type Encoding struct {
	Name  string
	enc   encoding.Encoding
	valid func(sample []byte) bool
}

// NewReader wraps r so it yields UTF-8 text.
func (e Encoding) NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, e.enc.NewDecoder())
}

// Decode converts b to a UTF-8 string.
func (e Encoding) Decode(b []byte) (string, error) {
	out, _, err := transform.Bytes(e.enc.NewDecoder(), b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var (
	Latin1 = Encoding{
		Name:  "latin-1",
		enc:   charmap.ISO8859_1,
		valid: func([]byte) bool { return true },
	}
	UTF8 = Encoding{
		Name:  "utf-8",
		enc:   utf8Strict{},
		valid: utf8.Valid,
	}
	Windows1252 = Encoding{
		Name:  "cp1252",
		enc:   charmap.Windows1252,
		valid: validWindows1252,
	}
)

// Candidates is the order in which encodings are attempted. Latin-1 accepts
// every byte sequence, so in practice it is always the one chosen; the later
// entries are reached only if it is removed from this list.
var Candidates = []Encoding{Latin1, UTF8, Windows1252}

// DetectEncoding returns the first candidate that decodes the sample.
func DetectEncoding(sample []byte, candidates []Encoding) (Encoding, bool) {
	if i := detectIndex(sample, candidates); i >= 0 {
		return candidates[i], true
	}
	return Encoding{}, false
}

func detectIndex(sample []byte, candidates []Encoding) int {
	for i, c := range candidates {
		if c.valid(sample) {
			return i
		}
	}
	return -1
}

// validWindows1252 rejects the five byte values cp1252 leaves undefined.
func validWindows1252(b []byte) bool {
	for _, c := range b {
		switch c {
		case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
			return false
		}
	}
	return true
}

// utf8Strict decodes UTF-8 and fails on invalid input instead of
// substituting U+FFFD.
type utf8Strict struct{}

func (utf8Strict) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: encoding.UTF8Validator}
}

func (utf8Strict) NewEncoder() *encoding.Encoder {
	return unicode.UTF8.NewEncoder()
}

// Delimiters are the field separators considered, in tie-break order.
var Delimiters = []rune{';', ',', '\t'}

// DetectDelimiter returns the delimiter occurring most often in the first
// line of sample. Ties go to the earlier entry in Delimiters.
func DetectDelimiter(sample string) rune {
	firstLine, _, _ := strings.Cut(sample, "\n")
	best, bestCount := Delimiters[0], -1
	for _, d := range Delimiters {
		if n := strings.Count(firstLine, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
