// Package schema loads the arsdk-xml command catalogue: the external,
// immutable description of every project/feature, class and command the
// codec can encode and decode. See §4.C and §6 of the spec.
//
// The catalogue is built once by Load and handed explicitly to
// internal/codec.New; nothing here is kept in a package-level global, the
// same discipline internal/telemetry follows.
package schema

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/postmannen/arsdk-go/internal/arsdkerr"
)

// ScalarKind is the wire type of one command argument.
type ScalarKind string

const (
	I8     ScalarKind = "i8"
	U8     ScalarKind = "u8"
	I16    ScalarKind = "i16"
	U16    ScalarKind = "u16"
	I32    ScalarKind = "i32"
	U32    ScalarKind = "u32"
	I64    ScalarKind = "i64"
	U64    ScalarKind = "u64"
	F32    ScalarKind = "f32"
	F64    ScalarKind = "f64"
	Enum   ScalarKind = "enum" // wire kind is i32
	String ScalarKind = "string"
)

// ListKind is the list semantics a command's schema declares.
type ListKind int

const (
	ListNone ListKind = iota
	ListList
	ListMap
)

// BufferKind is the schema's recommended delivery buffer for a command.
type BufferKind int

const (
	BufferNonAck BufferKind = iota
	BufferAck
	BufferHighPrio
)

func (b BufferKind) String() string {
	switch b {
	case BufferAck:
		return "ack"
	case BufferHighPrio:
		return "high_prio"
	default:
		return "non_ack"
	}
}

// TimeoutPolicy is a hint the orchestrator uses when a send times out.
type TimeoutPolicy int

const (
	TimeoutDefault TimeoutPolicy = iota
	TimeoutRetry
	TimeoutPop
)

// Arg describes one ordered command argument.
type Arg struct {
	Name       string
	Kind       ScalarKind
	Bitfield   bool
	EnumValues []string // declared order; enum wire value is the index
}

// Command is one catalogue entry, addressable by id triple or name triple.
type Command struct {
	Project   string
	ProjectID uint8
	Class     string // empty for a flat feature
	ClassID   uint8  // always 0 for a flat feature
	Name      string
	ID        uint16

	Args    []Arg
	List    ListKind
	Buffer  BufferKind
	Timeout TimeoutPolicy
}

type idKey struct {
	project uint8
	class   uint8
	cmd     uint16
}

type nameKey struct {
	project string
	class   string
	cmd     string
}

// Catalogue is the immutable, fully-resolved command dictionary.
type Catalogue struct {
	byID   map[idKey]*Command
	byName map[nameKey]*Command
}

// Load parses every *.xml file directly under root into a Catalogue.
// generic.xml, if present, is parsed first (it only carries shared
// enum/bitfield declarations, which are not retained: every arg carries
// its own inline enum_value list); the remaining files load in alphabetical
// order, matching the upstream arsdkparser.parse_xml loop order.
func Load(root string) (*Catalogue, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, arsdkerr.Wrap("schema.Load", arsdkerr.KindSchema, err)
	}

	cat := &Catalogue{
		byID:   make(map[idKey]*Command),
		byName: make(map[nameKey]*Command),
	}

	genericPath := filepath.Join(root, "generic.xml")
	if _, err := os.Stat(genericPath); err == nil {
		if err := cat.loadFile(genericPath); err != nil {
			return nil, arsdkerr.Wrap("schema.Load", arsdkerr.KindSchema, err)
		}
	}

	var rest []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".xml") || name == "generic.xml" {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)

	for _, name := range rest {
		if err := cat.loadFile(filepath.Join(root, name)); err != nil {
			return nil, arsdkerr.Wrap("schema.Load", arsdkerr.KindSchema, err)
		}
	}

	return cat, nil
}

func (c *Catalogue) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	root, err := rootElementName(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	switch root {
	case "generic":
		// Shared enum/bitfield declarations only; nothing to retain since
		// every arg in this catalogue carries its own inline enum_value
		// list or a plain integer bitfield kind.
		return nil
	case "project":
		var p xmlProject
		if err := xml.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return c.addProject(p)
	case "feature":
		var f xmlFeature
		if err := xml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return c.addFeature(f)
	default:
		return fmt.Errorf("%s: unrecognised root element %q", path, root)
	}
}

func rootElementName(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

func (c *Catalogue) addProject(p xmlProject) error {
	for _, class := range p.Classes {
		for _, xc := range class.Cmds {
			cmd, err := buildCommand(p.Name, p.ID, class.Name, class.ID, class.Buffer, xc)
			if err != nil {
				return fmt.Errorf("project %s/%s: %w", p.Name, class.Name, err)
			}
			c.register(cmd)
		}
	}
	return nil
}

func (c *Catalogue) addFeature(f xmlFeature) error {
	for _, xc := range f.Cmds {
		cmd, err := buildCommand(f.Name, f.ID, "", 0, "", xc)
		if err != nil {
			return fmt.Errorf("feature %s: %w", f.Name, err)
		}
		c.register(cmd)
	}
	return nil
}

func (c *Catalogue) register(cmd *Command) {
	c.byID[idKey{cmd.ProjectID, cmd.ClassID, cmd.ID}] = cmd
	c.byName[nameKey{cmd.Project, cmd.Class, cmd.Name}] = cmd
}

func buildCommand(project string, projectID uint8, class string, classID uint8, classBuffer string, xc xmlCmd) (*Command, error) {
	args := make([]Arg, 0, len(xc.Args))
	for _, xa := range xc.Args {
		kind, err := parseScalarKind(xa.Type)
		if err != nil {
			return nil, fmt.Errorf("cmd %s: arg %s: %w", xc.Name, xa.Name, err)
		}
		var enumValues []string
		for _, ev := range xa.EnumValues {
			enumValues = append(enumValues, ev.Name)
		}
		args = append(args, Arg{
			Name:       xa.Name,
			Kind:       kind,
			Bitfield:   xa.Bitfield != "",
			EnumValues: enumValues,
		})
	}

	buffer := xc.Buffer
	if buffer == "" {
		buffer = classBuffer
	}

	return &Command{
		Project:   project,
		ProjectID: projectID,
		Class:     class,
		ClassID:   classID,
		Name:      xc.Name,
		ID:        xc.ID,
		Args:      args,
		List:      parseListKind(xc.List),
		Buffer:    parseBufferKind(buffer),
		Timeout:   parseTimeoutPolicy(xc.Timeout),
	}, nil
}

func parseScalarKind(s string) (ScalarKind, error) {
	switch s {
	case "float":
		return F32, nil
	case "double":
		return F64, nil
	case "i8", "u8", "i16", "u16", "i32", "u32", "i64", "u64", "enum", "string":
		return ScalarKind(s), nil
	default:
		return "", fmt.Errorf("unknown arg type %q", s)
	}
}

func parseListKind(s string) ListKind {
	switch s {
	case "list":
		return ListList
	case "map":
		return ListMap
	default:
		return ListNone
	}
}

func parseBufferKind(s string) BufferKind {
	switch s {
	case "ack":
		return BufferAck
	case "high_prio":
		return BufferHighPrio
	default:
		return BufferNonAck
	}
}

func parseTimeoutPolicy(s string) TimeoutPolicy {
	switch s {
	case "retry":
		return TimeoutRetry
	case "pop":
		return TimeoutPop
	default:
		return TimeoutDefault
	}
}

// ByID resolves a command from its wire address.
func (c *Catalogue) ByID(projectID, classID uint8, cmdID uint16) (*Command, bool) {
	cmd, ok := c.byID[idKey{projectID, classID, cmdID}]
	return cmd, ok
}

// ByName resolves a command from its schema names. class is "" for a flat
// feature.
func (c *Catalogue) ByName(project, class, cmd string) (*Command, bool) {
	got, ok := c.byName[nameKey{project, class, cmd}]
	return got, ok
}

// xmlProject and its children mirror the subset of the arsdk-xml project
// grammar this codec understands: name/id on project and class, plus the
// per-command attributes buildCommand reads.
type xmlProject struct {
	XMLName xml.Name   `xml:"project"`
	Name    string     `xml:"name,attr"`
	ID      uint8      `xml:"id,attr"`
	Classes []xmlClass `xml:"class"`
}

type xmlClass struct {
	Name   string   `xml:"name,attr"`
	ID     uint8    `xml:"id,attr"`
	Buffer string   `xml:"buffer,attr"`
	Cmds   []xmlCmd `xml:"cmd"`
}

// xmlFeature is the flat equivalent of xmlProject: commands live directly
// under the root, with no class level.
type xmlFeature struct {
	XMLName xml.Name `xml:"feature"`
	Name    string   `xml:"name,attr"`
	ID      uint8    `xml:"id,attr"`
	Cmds    []xmlCmd `xml:"cmd"`
}

type xmlCmd struct {
	Name    string   `xml:"name,attr"`
	ID      uint16   `xml:"id,attr"`
	Buffer  string   `xml:"buffer,attr"`
	Timeout string   `xml:"timeout,attr"`
	List    string   `xml:"list,attr"`
	Args    []xmlArg `xml:"arg"`
}

type xmlArg struct {
	Name       string         `xml:"name,attr"`
	Type       string         `xml:"type,attr"`
	Bitfield   string         `xml:"bitfield,attr"`
	EnumValues []xmlEnumValue `xml:"enum_value"`
}

type xmlEnumValue struct {
	Name string `xml:"name,attr"`
}
