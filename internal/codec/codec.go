// Package codec binds schema names to wire bytes: it is the only part of
// the stack that knows how to turn a (project, class, command) triple and
// a list of arguments into an ARNetwork command payload, and back. See
// §4.C of the spec.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/postmannen/arsdk-go/internal/arsdkerr"
	"github.com/postmannen/arsdk-go/internal/schema"
)

// Record is a decoded command: the resolved schema names plus its
// argument values keyed by argument name. List carries the schema's list
// semantics so the device orchestrator can route Put/PutList/PutMap
// without re-consulting the catalogue; Arg0 is the first argument's value
// (or nil), used as the MAP slot's key.
type Record struct {
	Project string
	Class   string // empty for a flat feature
	Command string
	List    schema.ListKind
	Args    map[string]any
	Arg0    any
}

// Codec is built from an immutable schema.Catalogue and is safe for
// concurrent use (it holds no mutable state of its own).
type Codec struct {
	cat *schema.Catalogue
}

// New builds a Codec over cat. cat must not be modified afterwards.
func New(cat *schema.Catalogue) *Codec {
	return &Codec{cat: cat}
}

// Encode resolves project/class/command against the catalogue (class ""
// selects the flat-feature path: class_id 0, no class-name resolution)
// and packs args into a command payload. It returns the schema's
// recommended buffer kind and timeout policy as hints for the caller.
func (c *Codec) Encode(project, class, command string, args ...any) ([]byte, schema.BufferKind, schema.TimeoutPolicy, error) {
	cmd, ok := c.cat.ByName(project, class, command)
	if !ok {
		return nil, 0, 0, arsdkerr.New("codec.Encode", arsdkerr.KindUnknownCmd,
			fmt.Sprintf("%s.%s.%s is not in the catalogue", project, class, command))
	}
	if len(args) != len(cmd.Args) {
		return nil, 0, 0, arsdkerr.New("codec.Encode", arsdkerr.KindSchema,
			fmt.Sprintf("%s.%s.%s wants %d args, got %d", project, class, command, len(cmd.Args), len(args)))
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(cmd.ProjectID)
	buf.WriteByte(cmd.ClassID)
	binary.Write(buf, binary.LittleEndian, cmd.ID)

	for i, argDef := range cmd.Args {
		if err := encodeArg(buf, argDef, args[i]); err != nil {
			return nil, 0, 0, arsdkerr.New("codec.Encode", arsdkerr.KindSchema,
				fmt.Sprintf("%s.%s.%s: %v", project, class, command, err))
		}
	}

	return buf.Bytes(), cmd.Buffer, cmd.Timeout, nil
}

// Decode resolves the project_id/class_id/cmd_id header against the
// catalogue and unpacks the argument list. An unrecognised header is not
// an error: it returns ok=false so the caller can drop the frame.
func (c *Codec) Decode(data []byte) (Record, bool, error) {
	const headerSize = 4 // project_id(1) + class_id(1) + cmd_id(2)
	if len(data) < headerSize {
		return Record{}, false, arsdkerr.New("codec.Decode", arsdkerr.KindDecode, "frame shorter than command header")
	}

	projectID := data[0]
	classID := data[1]
	cmdID := binary.LittleEndian.Uint16(data[2:4])

	cmd, ok := c.cat.ByID(projectID, classID, cmdID)
	if !ok {
		return Record{}, false, nil
	}

	rest := data[headerSize:]
	argVals := make(map[string]any, len(cmd.Args))
	for _, argDef := range cmd.Args {
		v, n, err := decodeArg(argDef, rest)
		if err != nil {
			return Record{}, false, arsdkerr.New("codec.Decode", arsdkerr.KindDecode,
				fmt.Sprintf("%s.%s.%s: arg %s: %v", cmd.Project, cmd.Class, cmd.Name, argDef.Name, err))
		}
		argVals[argDef.Name] = v
		rest = rest[n:]
	}

	var arg0 any
	if len(cmd.Args) > 0 {
		arg0 = argVals[cmd.Args[0].Name]
	}

	return Record{
		Project: cmd.Project,
		Class:   cmd.Class,
		Command: cmd.Name,
		List:    cmd.List,
		Args:    argVals,
		Arg0:    arg0,
	}, true, nil
}

func encodeArg(buf *bytes.Buffer, argDef schema.Arg, v any) error {
	switch argDef.Kind {
	case schema.I8:
		n, ok := toInt64(v)
		if !ok || n < -128 || n > 127 {
			return fmt.Errorf("arg %s wants i8, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, int8(n))
	case schema.U8:
		n, ok := toInt64(v)
		if !ok || n < 0 || n > 255 {
			return fmt.Errorf("arg %s wants u8, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, uint8(n))
	case schema.I16:
		n, ok := toInt64(v)
		if !ok || n < -32768 || n > 32767 {
			return fmt.Errorf("arg %s wants i16, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, int16(n))
	case schema.U16:
		n, ok := toInt64(v)
		if !ok || n < 0 || n > 65535 {
			return fmt.Errorf("arg %s wants u16, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, uint16(n))
	case schema.I32:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("arg %s wants i32, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, int32(n))
	case schema.U32:
		n, ok := toInt64(v)
		if !ok || n < 0 {
			return fmt.Errorf("arg %s wants u32, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, uint32(n))
	case schema.I64:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("arg %s wants i64, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, n)
	case schema.U64:
		n, ok := toInt64(v)
		if !ok || n < 0 {
			return fmt.Errorf("arg %s wants u64, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, uint64(n))
	case schema.F32:
		f, ok := toFloat64(v)
		if !ok {
			return fmt.Errorf("arg %s wants float, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, float32(f))
	case schema.F64:
		f, ok := toFloat64(v)
		if !ok {
			return fmt.Errorf("arg %s wants double, got %T(%v)", argDef.Name, v, v)
		}
		return binary.Write(buf, binary.LittleEndian, f)
	case schema.Enum:
		idx, err := enumIndex(argDef, v)
		if err != nil {
			return fmt.Errorf("arg %s: %w", argDef.Name, err)
		}
		return binary.Write(buf, binary.LittleEndian, idx)
	case schema.String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("arg %s wants string, got %T", argDef.Name, v)
		}
		buf.WriteString(s)
		buf.WriteByte(0)
		return nil
	default:
		return fmt.Errorf("arg %s: unsupported scalar kind %q", argDef.Name, argDef.Kind)
	}
}

// decodeArg reads one argument off the front of data and returns its
// decoded value and the number of bytes it consumed.
func decodeArg(argDef schema.Arg, data []byte) (any, int, error) {
	switch argDef.Kind {
	case schema.I8:
		if len(data) < 1 {
			return nil, 0, fmt.Errorf("short i8")
		}
		return int8(data[0]), 1, nil
	case schema.U8:
		if len(data) < 1 {
			return nil, 0, fmt.Errorf("short u8")
		}
		return data[0], 1, nil
	case schema.I16:
		if len(data) < 2 {
			return nil, 0, fmt.Errorf("short i16")
		}
		return int16(binary.LittleEndian.Uint16(data)), 2, nil
	case schema.U16:
		if len(data) < 2 {
			return nil, 0, fmt.Errorf("short u16")
		}
		return binary.LittleEndian.Uint16(data), 2, nil
	case schema.I32:
		if len(data) < 4 {
			return nil, 0, fmt.Errorf("short i32")
		}
		return int32(binary.LittleEndian.Uint32(data)), 4, nil
	case schema.U32:
		if len(data) < 4 {
			return nil, 0, fmt.Errorf("short u32")
		}
		return binary.LittleEndian.Uint32(data), 4, nil
	case schema.I64:
		if len(data) < 8 {
			return nil, 0, fmt.Errorf("short i64")
		}
		return int64(binary.LittleEndian.Uint64(data)), 8, nil
	case schema.U64:
		if len(data) < 8 {
			return nil, 0, fmt.Errorf("short u64")
		}
		return binary.LittleEndian.Uint64(data), 8, nil
	case schema.F32:
		if len(data) < 4 {
			return nil, 0, fmt.Errorf("short float")
		}
		bits := binary.LittleEndian.Uint32(data)
		return math.Float32frombits(bits), 4, nil
	case schema.F64:
		if len(data) < 8 {
			return nil, 0, fmt.Errorf("short double")
		}
		bits := binary.LittleEndian.Uint64(data)
		return math.Float64frombits(bits), 8, nil
	case schema.Enum:
		if len(data) < 4 {
			return nil, 0, fmt.Errorf("short enum")
		}
		idx := int32(binary.LittleEndian.Uint32(data))
		if idx >= 0 && int(idx) < len(argDef.EnumValues) {
			return argDef.EnumValues[idx], 4, nil
		}
		return idx, 4, nil
	case schema.String:
		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, 0, fmt.Errorf("no NUL terminator in string arg")
		}
		return string(data[:nul]), nul + 1, nil
	default:
		return nil, 0, fmt.Errorf("unsupported scalar kind %q", argDef.Kind)
	}
}

// enumIndex resolves v (an enum value name, or a raw index) to its wire
// index.
func enumIndex(argDef schema.Arg, v any) (int32, error) {
	switch val := v.(type) {
	case string:
		for i, name := range argDef.EnumValues {
			if name == val {
				return int32(i), nil
			}
		}
		return 0, fmt.Errorf("unknown enum value %q", val)
	default:
		n, ok := toInt64(v)
		if !ok {
			return 0, fmt.Errorf("wants enum name or integer index, got %T(%v)", v, v)
		}
		return int32(n), nil
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
