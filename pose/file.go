package pose

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type wireBone struct {
	Position *string `json:"Position,omitempty"`
	Rotation *string `json:"Rotation,omitempty"`
	Scale    *string `json:"Scale,omitempty"`
}

type wireRecord struct {
	FileExtension string                     `json:"FileExtension"`
	TypeName      string                     `json:"TypeName"`
	FileVersion   int                        `json:"FileVersion"`
	Bones         map[string]json.RawMessage `json:"Bones"`
}

// Decode reads a record. Files written by Windows tools may carry a UTF-8 or
// UTF-16 byte order mark. Malformed fields of a bone entry are dropped with a
// warning; a structurally broken file is an ErrInvalidFile.
func Decode(r io.Reader) (*Record, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if w.Bones == nil {
		return nil, fmt.Errorf("%w: no Bones", ErrInvalidFile)
	}

	rec := &Record{
		FileExtension: w.FileExtension,
		TypeName:      w.TypeName,
		FileVersion:   w.FileVersion,
		Bones:         make(map[string]*Transform, len(w.Bones)),
	}
	for name, raw := range w.Bones {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			slog.Warn("skipping malformed bone entry", "bone", name)
			continue
		}
		rec.Bones[name] = decodeBone(name, fields)
	}
	return rec, nil
}

func decodeBone(name string, fields map[string]json.RawMessage) *Transform {
	t := &Transform{}
	str := func(key string) (string, bool) {
		raw, ok := fields[key]
		if !ok {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			slog.Warn("skipping malformed field", "bone", name, "field", key)
			return "", false
		}
		return s, true
	}
	if s, ok := str("Position"); ok {
		if v, err := parseVector(s); err == nil {
			t.Position = v
		} else {
			slog.Warn("skipping malformed field", "bone", name, "field", "Position", "err", err)
		}
	}
	if s, ok := str("Rotation"); ok {
		if q, err := parseQuaternion(s); err == nil {
			t.Rotation = q
		} else {
			slog.Warn("skipping malformed field", "bone", name, "field", "Rotation", "err", err)
		}
	}
	if s, ok := str("Scale"); ok {
		if v, err := parseVector(s); err == nil {
			t.Scale = v
		} else {
			slog.Warn("skipping malformed field", "bone", name, "field", "Scale", "err", err)
		}
	}
	return t
}

// Encode writes rec as JSON indented with four spaces.
func Encode(w io.Writer, rec *Record) error {
	out := wireRecord{
		FileExtension: FileExtension,
		TypeName:      TypeName,
		FileVersion:   FileVersion,
		Bones:         make(map[string]json.RawMessage, len(rec.Bones)),
	}
	for name, t := range rec.Bones {
		if t == nil {
			continue
		}
		var b wireBone
		if t.Position != nil {
			s := formatVector(t.Position, 6)
			b.Position = &s
		}
		if t.Rotation != nil {
			s := formatQuaternion(t.Rotation)
			b.Rotation = &s
		}
		if t.Scale != nil {
			s := formatVector(t.Scale, 8)
			b.Scale = &s
		}
		raw, err := json.Marshal(&b)
		if err != nil {
			return err
		}
		out.Bones[name] = raw
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "    "); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func ReadFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile writes rec through a temporary file in the same directory and
// renames it into place.
func WriteFile(path string, rec *Record) error {
	if filepath.Ext(path) == "" {
		path += FileExtension
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pose-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Encode(tmp, rec); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
