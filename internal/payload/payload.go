// Package payload turns init payload files into the canonical JSON the
// registry consumes.
//
// A payload may be written as JSON, YAML or CUE. Whatever the source, it
// is decoded to a plain value, relative times are resolved, the result is
// checked against the kind's CUE definition (schemas.cue), and the output
// is canonical JSON. Shape errors surface as INVALID_PAYLOAD before an
// operation is ever journaled.
package payload

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/pledgeworks/pledge/internal/canon"
	"github.com/pledgeworks/pledge/internal/protocol"
)

//go:embed schemas.cue
var schemasCUE string

// Format is the encoding of a payload source.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks a format from a file extension. Unknown extensions and
// stdin ("-") are read as YAML, which also accepts JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".cue":
		return FormatCUE
	default:
		return FormatYAML
	}
}

// Schemas validates payloads against the embedded kind definitions.
//
// Thread-safety: a cue.Context is not safe for concurrent use; callers
// serialize access to a Schemas value.
type Schemas struct {
	ctx  *cue.Context
	root cue.Value
}

// NewSchemas compiles the embedded definitions.
func NewSchemas() (*Schemas, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemasCUE, cue.Filename("schemas.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schemas: %w", err)
	}
	return &Schemas{ctx: ctx, root: root}, nil
}

// Has reports whether kind has a definition.
func (s *Schemas) Has(kind protocol.Kind) bool {
	return s.definition(kind).Exists()
}

func (s *Schemas) definition(kind protocol.Kind) cue.Value {
	if kind == "" || strings.ContainsAny(string(kind), ". #") {
		return cue.Value{}
	}
	return s.root.LookupPath(cue.ParsePath("#" + string(kind)))
}

// LoadFile reads path (or stdin for "-") and prepares it for kind. now
// resolves relative times.
func (s *Schemas) LoadFile(kind protocol.Kind, path string, now protocol.Timestamp) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = readAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload %s: %w", path, err)
	}
	return s.Load(kind, FormatOf(path), data, now)
}

// Load decodes data in the given format and prepares it for kind.
func (s *Schemas) Load(kind protocol.Kind, format Format, data []byte, now protocol.Timestamp) ([]byte, error) {
	v, err := s.decode(format, data)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrInvalidPayload, "%v", err)
	}
	return s.Prepare(kind, v, now)
}

// Prepare resolves relative times in an already decoded value, validates
// it, and returns canonical JSON.
func (s *Schemas) Prepare(kind protocol.Kind, v any, now protocol.Timestamp) ([]byte, error) {
	resolved, err := ResolveTimes(v, now)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrInvalidPayload, "%v", err)
	}
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrInvalidPayload, "encode payload: %v", err)
	}
	return s.Validate(kind, raw)
}

// Validate checks raw JSON against kind's definition and returns it in
// canonical form.
func (s *Schemas) Validate(kind protocol.Kind, raw []byte) ([]byte, error) {
	def := s.definition(kind)
	if !def.Exists() {
		return nil, protocol.Errorf(protocol.ErrInvalidPayload, "no payload schema for kind %q", kind)
	}

	value := s.ctx.CompileBytes(raw, cue.Filename("payload.json"))
	if err := value.Err(); err != nil {
		return nil, protocol.Errorf(protocol.ErrInvalidPayload, "%s", describe(err))
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return nil, protocol.Errorf(protocol.ErrInvalidPayload, "%s: %s", kind, describe(err))
	}

	out, err := canon.Canonicalize(raw)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrInvalidPayload, "%v", err)
	}
	return out, nil
}

func (s *Schemas) decode(format Format, data []byte) (any, error) {
	var v any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		if dec.More() {
			return nil, fmt.Errorf("decode json: trailing data")
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatCUE:
		value := s.ctx.CompileBytes(data, cue.Filename("payload.cue"))
		if err := value.Err(); err != nil {
			return nil, fmt.Errorf("compile cue: %s", describe(err))
		}
		raw, err := value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("export cue: %s", describe(err))
		}
		return s.decode(FormatJSON, raw)
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("payload must be an object, got %T", v)
	}
	return v, nil
}

// describe flattens a CUE error list into one line.
func describe(err error) string {
	var parts []string
	for _, e := range cueerrors.Errors(err) {
		parts = append(parts, strings.TrimSpace(e.Error()))
	}
	if len(parts) == 0 {
		return err.Error()
	}
	return strings.Join(parts, "; ")
}

func readAll(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(f)
	return buf.Bytes(), err
}
