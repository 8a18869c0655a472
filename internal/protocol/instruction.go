// Package protocol implements the line-framed instruction stream used
// between the gateway and the browser thin client (spec §6): each
// instruction is a comma-separated list of length-prefixed UTF-8 fields
// terminated by a semicolon.
package protocol

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Outbound opcodes the core ever writes.
const (
	OpSize    = "size"
	OpMove    = "move"
	OpShade   = "shade"
	OpDispose = "dispose"
	OpRect    = "rect"
	OpCFill   = "cfill"
	OpLFill   = "lfill"
	OpCopy    = "copy"
	OpPNG     = "png"
	OpCursor  = "cursor"
	OpSync    = "sync"
	OpError   = "error"
	OpArgs    = "args"
	OpName    = "name"
	OpLog     = "log"
	OpBlob    = "blob"
	OpEnd     = "end"
)

// Inbound opcodes the core ever reads.
const (
	OpSelect     = "select"
	OpAudio      = "audio"
	OpVideo      = "video"
	OpConnect    = "connect"
	OpMouse      = "mouse"
	OpKey        = "key"
	OpClipboard  = "clipboard"
	OpDisconnect = "disconnect"
)

// Instruction is one parsed line of the display protocol: an opcode
// plus its ordered argument fields.
type Instruction struct {
	Opcode string
	Args   []string
}

// New builds an Instruction from an opcode and string arguments.
func New(opcode string, args ...string) Instruction {
	return Instruction{Opcode: opcode, Args: args}
}

// Encode renders the instruction in length-prefixed, semicolon-terminated
// wire form: "LENGTH.OPCODE,LENGTH.ARG1,...;". LENGTH is the decimal
// UTF-8 code-point count of the following field, not its byte count.
func (i Instruction) Encode() string {
	var b strings.Builder
	writeField(&b, i.Opcode)
	for _, arg := range i.Args {
		b.WriteByte(',')
		writeField(&b, arg)
	}
	b.WriteByte(';')
	return b.String()
}

func writeField(b *strings.Builder, field string) {
	b.WriteString(strconv.Itoa(utf8.RuneCountInString(field)))
	b.WriteByte('.')
	b.WriteString(field)
}
