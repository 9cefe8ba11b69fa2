package link

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Dictionary is the command dictionary published by the drive firmware
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commandIDs  map[string]uint16
	responseIDs map[string]uint16
	names       map[uint16]string
}

// ParseDictionary decodes the identify data and indexes it by message name
func ParseDictionary(data []byte) (*Dictionary, error) {
	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	d.index()
	return d, nil
}

func (d *Dictionary) index() {
	d.commandIDs = make(map[string]uint16, len(d.Commands))
	d.responseIDs = make(map[string]uint16, len(d.Responses))
	d.names = make(map[uint16]string, len(d.Commands)+len(d.Responses))
	for sig, id := range d.Commands {
		name := messageName(sig)
		d.commandIDs[name] = uint16(id)
		d.names[uint16(id)] = name
	}
	for sig, id := range d.Responses {
		name := messageName(sig)
		d.responseIDs[name] = uint16(id)
		d.names[uint16(id)] = name
	}
}

// messageName strips the argument format from a signature
func messageName(sig string) string {
	if i := strings.IndexByte(sig, ' '); i >= 0 {
		return sig[:i]
	}
	return sig
}

// CommandID returns the id of a command
func (d *Dictionary) CommandID(name string) (uint16, bool) {
	id, ok := d.commandIDs[name]
	return id, ok
}

// ResponseID returns the id of a response
func (d *Dictionary) ResponseID(name string) (uint16, bool) {
	id, ok := d.responseIDs[name]
	return id, ok
}

// Name returns the message name for id
func (d *Dictionary) Name(id uint16) string {
	if name, ok := d.names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

// Constant returns a config constant
func (d *Dictionary) Constant(name string) (string, bool) {
	v, ok := d.Config[name]
	return v, ok
}

// Enum returns the wire value of an enumeration member
func (d *Dictionary) Enum(enum, value string) (int, bool) {
	v, ok := d.Enumerations[enum][value]
	return v, ok
}
