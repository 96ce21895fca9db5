package storage

import (
	"encoding/json"
	"fmt"
	"io"
)

// Codec turns the state snapshot and the history log into bytes on disk
// and back.
type Codec interface {
	Encode(w io.Writer, v any) error
	Decode(r io.Reader, v any) error
}

// JSONCodec is the on-disk format of server_state.json and stats_log.json.
// FileStore indents the history log and keeps the state file compact.
type JSONCodec struct {
	Indent string // "" writes compact JSON
}

// Encode writes v followed by a newline.
func (c JSONCodec) Encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// Decode reads a single document into v.
func (c JSONCodec) Decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}
