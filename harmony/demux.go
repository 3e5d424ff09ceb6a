// Package harmony partitions a raw token stream mixing plain content with
// bracketed control tokens (<|channel|>, <|message|>, <|start|>, <|end|>,
// <|return|>) into named channels. Only the "final" channel is surfaced live;
// "analysis" and "commentary" are suppressed from the live stream but
// retained so callers can fall back on them when no final content arrives.
// Backends that never emit markers degrade gracefully: everything lands on
// the default "final" channel unchanged.
package harmony

import (
	"regexp"
	"strings"
)

// Channel names recognized by the demultiplexer.
const (
	ChannelFinal      = "final"
	ChannelAnalysis   = "analysis"
	ChannelCommentary = "commentary"
)

// Control tokens consumed by the demultiplexer, never emitted.
const (
	tokenStart   = "<|start|>"
	tokenEnd     = "<|end|>"
	tokenReturn  = "<|return|>"
	tokenChannel = "<|channel|>"
	tokenMessage = "<|message|>"
)

var (
	// tokenRe matches a complete bracketed control token.
	tokenRe = regexp.MustCompile(`<\|[a-z_]+\|>`)
	// tokenPrefixRe matches a string that could still grow into a control
	// token with more input. Used to hold back a marker split across reads.
	tokenPrefixRe = regexp.MustCompile(`^<(\|[a-z_]*\|?)?$`)
)

func isChannelName(s string) bool {
	return s == ChannelFinal || s == ChannelAnalysis || s == ChannelCommentary
}

// Demux is a stateful, single-stream channel demultiplexer. It is scoped to
// one response stream and is not safe for concurrent use; the dispatch loop
// owns one per run. Bytes held back because they may be the front of a split
// control token are carried into the next Write call rather than discarded.
type Demux struct {
	current  string
	buffers  map[string]*strings.Builder
	consumed strings.Builder

	// carry holds a trailing chunk fragment that may be a partial control
	// token; it is re-parsed prepended to the next chunk.
	carry string
	// awaitingName is set after <|channel|> until the next control token;
	// text seen in between accumulates in nameBuf instead of a channel.
	awaitingName bool
	nameBuf      strings.Builder
}

// NewDemux creates a demultiplexer with the live channel defaulting to "final".
func NewDemux() *Demux {
	return &Demux{
		current: ChannelFinal,
		buffers: map[string]*strings.Builder{
			ChannelFinal:      {},
			ChannelAnalysis:   {},
			ChannelCommentary: {},
		},
	}
}

// Write feeds one network chunk through the demultiplexer and returns the
// text newly attributable to the live "final" channel.
func (d *Demux) Write(chunk string) string {
	data := d.carry + chunk
	d.carry = ""

	// Hold back a trailing fragment that may still become a control token.
	if idx := strings.LastIndexByte(data, '<'); idx >= 0 {
		tail := data[idx:]
		if tokenPrefixRe.MatchString(tail) {
			d.carry = tail
			data = data[:idx]
		}
	}

	return d.process(data)
}

// Flush terminates the stream: any held-back partial marker and any pending
// channel-name bytes are reinterpreted as literal text. It returns the live
// text produced by that reinterpretation.
func (d *Demux) Flush() string {
	var live strings.Builder
	if d.awaitingName {
		d.awaitingName = false
		pending := d.nameBuf.String()
		d.nameBuf.Reset()
		live.WriteString(d.appendText(pending))
	}
	if d.carry != "" {
		carry := d.carry
		d.carry = ""
		live.WriteString(d.appendText(carry))
	}
	return live.String()
}

// Channel returns the accumulated buffer of a named channel.
func (d *Demux) Channel(name string) string {
	if b, ok := d.buffers[name]; ok {
		return b.String()
	}
	return ""
}

// Consumed returns the concatenation, in encounter order, of all control
// tokens and channel-name designators removed from the stream. Together with
// the channel buffers it accounts for every input byte.
func (d *Demux) Consumed() string { return d.consumed.String() }

// FallbackText returns the final channel content, or the analysis then
// commentary buffers when no final content was produced.
func (d *Demux) FallbackText() string {
	if s := d.Channel(ChannelFinal); s != "" {
		return s
	}
	if s := d.Channel(ChannelAnalysis); s != "" {
		return s
	}
	return d.Channel(ChannelCommentary)
}

func (d *Demux) process(data string) string {
	if data == "" {
		return ""
	}

	var live strings.Builder
	pos := 0
	for _, loc := range tokenRe.FindAllStringIndex(data, -1) {
		if loc[0] > pos {
			live.WriteString(d.handleText(data[pos:loc[0]]))
		}
		live.WriteString(d.handleToken(data[loc[0]:loc[1]]))
		pos = loc[1]
	}
	if pos < len(data) {
		live.WriteString(d.handleText(data[pos:]))
	}
	return live.String()
}

// handleToken consumes one complete control token and updates parser state.
// It returns any live text produced by reinterpreting pending bytes.
func (d *Demux) handleToken(token string) string {
	live := ""
	// A token terminates any pending channel-name accumulation.
	if d.awaitingName {
		d.awaitingName = false
		name := d.nameBuf.String()
		d.nameBuf.Reset()
		if isChannelName(name) {
			d.current = name
			d.consumed.WriteString(name)
		} else {
			// Not a channel designator after all; it was content.
			live = d.appendText(name)
		}
	}

	switch token {
	case tokenChannel:
		d.awaitingName = true
	case tokenEnd, tokenReturn:
		// A closed message ends its channel; later text is live again.
		d.current = ChannelFinal
	case tokenStart, tokenMessage:
		// consumed
	default:
		// An unknown bracketed token naming a channel switches directly.
		name := strings.TrimSuffix(strings.TrimPrefix(token, "<|"), "|>")
		if isChannelName(name) {
			d.current = name
		}
	}
	d.consumed.WriteString(token)
	return live
}

// handleText routes a text segment. Text is only a channel designator when
// it follows a <|channel|> token; anywhere else it is ordinary content,
// even when it happens to spell a channel name.
func (d *Demux) handleText(text string) string {
	if d.awaitingName {
		d.nameBuf.WriteString(text)
		return ""
	}
	return d.appendText(text)
}

// appendText adds text to the current channel, returning it when live.
func (d *Demux) appendText(text string) string {
	d.buffers[d.current].WriteString(text)
	if d.current == ChannelFinal {
		return text
	}
	return ""
}
