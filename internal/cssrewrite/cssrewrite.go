// Package cssrewrite implements the byte-level streaming scanner that finds
// url(...) tokens in a CSS byte stream and replaces each payload with a
// minted capability URL, without parsing CSS.
package cssrewrite

import (
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/friedemannsommer/searproxy-go/internal/capability"
)

type matchState int

const (
	stateNone matchState = iota
	stateU
	stateR
	stateL
	stateOpenParen
	stateQuoteSingle
	stateQuoteDouble
	stateCloseParen
)

func (s matchState) next() matchState {
	switch s {
	case stateNone:
		return stateU
	case stateU:
		return stateR
	case stateR:
		return stateL
	case stateL:
		return stateOpenParen
	case stateOpenParen, stateQuoteSingle, stateQuoteDouble:
		return stateCloseParen
	default:
		return stateNone
	}
}

func (s matchState) insideBrackets() bool {
	switch s {
	case stateOpenParen, stateQuoteSingle, stateQuoteDouble, stateCloseParen:
		return true
	default:
		return false
	}
}

func (s matchState) whitespaceAllowed() bool {
	switch s {
	case stateL, stateOpenParen, stateQuoteSingle, stateQuoteDouble, stateCloseParen:
		return true
	default:
		return false
	}
}

// Rewriter scans a CSS byte stream and rewrites every url(...) payload via a
// Codec, tolerating chunk boundaries that split a token.
type Rewriter struct {
	base  *url.URL
	codec *capability.Codec

	buffer     []byte
	output     []byte
	lastIndex  int
	matchStart int
	urlStart   int
	state      matchState
}

// New returns a Rewriter bound to base and codec.
func New(base *url.URL, codec *capability.Codec) *Rewriter {
	return &Rewriter{base: base, codec: codec}
}

// Write appends chunk to the scanner, emitting rewritten bytes to its
// internal output buffer. A mid-token partial match at the end of chunk is
// not an error: it is carried over and completed (or abandoned) by a later
// Write or by End.
func (r *Rewriter) Write(chunk []byte) error {
	r.buffer = append(r.buffer, chunk...)
	return r.parseBuffer()
}

// End flushes any remaining buffered bytes and returns the full rewritten
// output. A token left incomplete at end of stream is emitted literally,
// exactly as buffered; it is not an error.
func (r *Rewriter) End() ([]byte, error) {
	if err := r.parseBuffer(); err != nil {
		return nil, err
	}
	return r.output, nil
}

func (r *Rewriter) parseBuffer() error {
	if len(r.buffer) == 0 {
		return nil
	}

	offset := r.lastIndex

	for i := offset; i < len(r.buffer); i++ {
		r.lastIndex = i + 1
		b := r.buffer[i]

		switch {
		case b == 'u' && r.state == stateNone:
			r.output = append(r.output, b)
			r.matchStart = i
			r.state = r.state.next()
		case b == 'r' && r.state == stateU:
			r.output = append(r.output, b)
			r.state = r.state.next()
		case b == 'l' && r.state == stateR:
			r.output = append(r.output, b)
			r.state = r.state.next()
		case b == '(' && r.state == stateL:
			r.output = append(r.output, b)
			r.urlStart = i + 1
			r.state = r.state.next()
		case b == '"' && (r.state == stateOpenParen || r.state == stateQuoteDouble):
			if r.state == stateOpenParen {
				r.output = append(r.output, b)
				r.urlStart = i + 1
				r.state = stateQuoteDouble
			} else {
				rewritten, err := r.rewriteURL(r.urlStart, i)
				if err != nil {
					return err
				}
				r.output = append(r.output, rewritten...)
				r.output = append(r.output, b)
				r.state = r.state.next()
			}
		case b == '\'' && (r.state == stateOpenParen || r.state == stateQuoteSingle):
			if r.state == stateOpenParen {
				r.output = append(r.output, b)
				r.urlStart = i + 1
				r.state = stateQuoteSingle
			} else {
				rewritten, err := r.rewriteURL(r.urlStart, i)
				if err != nil {
					return err
				}
				r.output = append(r.output, rewritten...)
				r.output = append(r.output, b)
				r.state = r.state.next()
			}
		case b == ')' && r.state.insideBrackets():
			if r.state != stateCloseParen {
				rewritten, err := r.rewriteURL(r.urlStart, i)
				if err != nil {
					return err
				}
				r.output = append(r.output, rewritten...)
			}
			r.output = append(r.output, b)
			r.state = stateNone
		case b == ' ' || b == '\n' || b == '\r' || b == '\t':
			if !r.state.whitespaceAllowed() {
				r.output = append(r.output, b)
				r.state = stateNone
			}
		default:
			if r.state == stateNone || !r.state.insideBrackets() {
				r.output = append(r.output, b)
				r.state = stateNone
			}
		}
	}

	if r.matchStart != 0 {
		r.buffer = r.buffer[r.matchStart:]
		r.lastIndex = subSat(r.lastIndex, r.matchStart)
		r.urlStart = subSat(r.urlStart, r.matchStart)
		r.matchStart = 0
	} else if r.state == stateNone {
		r.buffer = r.buffer[:0]
		r.lastIndex = 0
	}

	return nil
}

func (r *Rewriter) rewriteURL(start, end int) (string, error) {
	payload := r.buffer[start:end]
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("cssrewrite: invalid utf-8 in url() payload")
	}
	return r.codec.Mint(r.base, string(payload)), nil
}

func subSat(a, b int) int {
	if a < b {
		return 0
	}
	return a - b
}
