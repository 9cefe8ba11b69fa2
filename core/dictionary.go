package core

import (
	"sort"
	"strings"
	"sync"

	"gofoc/protocol"
)

// Dictionary is the data dictionary the host downloads with identify. It
// lists every command and response with its id, plus firmware constants and
// enumerations. The encoding is JSON, built without reflection.
type Dictionary struct {
	mu           sync.RWMutex
	constants    map[string]string
	enumerations map[string][]string
	commandReg   *CommandRegistry
	version      string
	cached       []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a dictionary over cmdReg
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:    make(map[string]string),
		enumerations: make(map[string][]string),
		commandReg:   cmdReg,
		version:      protocol.Version,
	}
}

// RegisterConstant adds a constant to the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds an enumeration to the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// AddConstant adds a constant
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = valueToString(value)
	d.cached = nil
}

// AddEnumeration adds an enumeration; value i is encoded as i on the wire
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerations[name] = append([]string(nil), values...)
	d.cached = nil
}

// SetVersion sets the firmware version string
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cached = nil
}

// Generate returns the dictionary, building it on first use
func (d *Dictionary) Generate() []byte {
	// Fetch registry entries before taking our own lock
	commands, responses := d.commandReg.Entries()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cached = d.build(commands, responses)
	}
	return d.cached
}

// Invalidate drops the cached encoding after new registrations
func (d *Dictionary) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

func (d *Dictionary) build(commands, responses []*Command) []byte {
	var b strings.Builder
	b.WriteString(`{"version":`)
	writeQuoted(&b, d.version)
	b.WriteString(`,"build_versions":"go-tinygo","config":{`)

	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			b.WriteByte(',')
		}
		writeQuoted(&b, name)
		b.WriteByte(':')
		writeQuoted(&b, d.constants[name])
	}

	b.WriteString(`},"commands":`)
	writeCommands(&b, commands)
	b.WriteString(`,"responses":`)
	writeCommands(&b, responses)

	if len(d.enumerations) > 0 {
		b.WriteString(`,"enumerations":{`)
		names := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i > 0 {
				b.WriteByte(',')
			}
			writeQuoted(&b, name)
			b.WriteString(":{")
			for j, v := range d.enumerations[name] {
				if j > 0 {
					b.WriteByte(',')
				}
				writeQuoted(&b, v)
				b.WriteByte(':')
				b.WriteString(itoa(j))
			}
			b.WriteByte('}')
		}
		b.WriteByte('}')
	}

	b.WriteByte('}')
	return []byte(b.String())
}

func writeCommands(b *strings.Builder, cmds []*Command) {
	b.WriteByte('{')
	for i, c := range cmds {
		if i > 0 {
			b.WriteByte(',')
		}
		writeQuoted(b, c.Signature())
		b.WriteByte(':')
		b.WriteString(itoa(int(c.ID)))
	}
	b.WriteByte('}')
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetChunk returns a copy of up to count bytes starting at offset
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}
