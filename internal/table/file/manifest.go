package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chunky/internal/format"
	"chunky/internal/table"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	manifestFileName = "meta.bin"
	manifestVersion  = 0x01
)

var ErrCorruptManifest = errors.New("corrupt manifest")

// manifest is the persisted description of one dataset: identity, schema,
// the ordered list of segment files, and free-form attributes.
type manifest struct {
	ID       string            `msgpack:"id"`
	Name     string            `msgpack:"name"`
	Schema   []manifestField   `msgpack:"schema"`
	Segments []segmentRef      `msgpack:"segments"`
	Created  int64             `msgpack:"created"`
	Attrs    map[string]string `msgpack:"attrs"`
}

type manifestField struct {
	Name string `msgpack:"name"`
	Type uint8  `msgpack:"type"`
}

type segmentRef struct {
	File string `msgpack:"file"`
	Rows int64  `msgpack:"rows"`
}

func newManifest(id table.DatasetID, name string, schema table.Schema, created time.Time) manifest {
	fields := make([]manifestField, len(schema))
	for i, f := range schema {
		fields[i] = manifestField{Name: f.Name, Type: uint8(f.Type)}
	}
	return manifest{
		ID:      id.String(),
		Name:    name,
		Schema:  fields,
		Created: created.UnixNano(),
		Attrs:   map[string]string{},
	}
}

func (m manifest) schema() table.Schema {
	s := make(table.Schema, len(m.Schema))
	for i, f := range m.Schema {
		s[i] = table.Field{Name: f.Name, Type: table.ColumnType(f.Type)}
	}
	return s
}

func (m manifest) rows() int64 {
	var n int64
	for _, s := range m.Segments {
		n += s.Rows
	}
	return n
}

// clone copies the slices and map so a candidate manifest can be written
// before the in-memory state is replaced.
func (m manifest) clone() manifest {
	out := m
	out.Schema = append([]manifestField(nil), m.Schema...)
	out.Segments = append([]segmentRef(nil), m.Segments...)
	out.Attrs = make(map[string]string, len(m.Attrs))
	for k, v := range m.Attrs {
		out.Attrs[k] = v
	}
	return out
}

func (m manifest) toMeta() (table.DatasetMeta, error) {
	id, err := table.ParseDatasetID(m.ID)
	if err != nil {
		return table.DatasetMeta{}, fmt.Errorf("%w: dataset id: %w", ErrCorruptManifest, err)
	}
	meta := table.DatasetMeta{
		ID:       id,
		Name:     m.Name,
		Schema:   m.schema(),
		Rows:     m.rows(),
		Segments: len(m.Segments),
		Created:  time.Unix(0, m.Created).UTC(),
		Attrs:    m.Attrs,
	}
	return meta.Clone(), nil
}

func encodeManifest(m manifest) ([]byte, error) {
	body, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	hdr := format.Header{Type: format.TypeManifest, Version: manifestVersion}.Encode()
	return append(hdr[:], body...), nil
}

func decodeManifest(data []byte) (manifest, error) {
	if _, err := format.DecodeAndValidate(data, format.TypeManifest, manifestVersion); err != nil {
		return manifest{}, fmt.Errorf("%w: %w", ErrCorruptManifest, err)
	}
	var m manifest
	if err := msgpack.Unmarshal(data[format.HeaderSize:], &m); err != nil {
		return manifest{}, fmt.Errorf("%w: %w", ErrCorruptManifest, err)
	}
	for _, f := range m.Schema {
		if !table.ColumnType(f.Type).Valid() {
			return manifest{}, fmt.Errorf("%w: column %q has unknown type %d", ErrCorruptManifest, f.Name, f.Type)
		}
	}
	if m.Attrs == nil {
		m.Attrs = map[string]string{}
	}
	return m, nil
}

func loadManifest(dir string) (manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName)) //nolint:gosec // G304: path is built from the store dir
	if err != nil {
		return manifest{}, err
	}
	return decodeManifest(data)
}

func writeManifest(dir string, m manifest, mode os.FileMode) error {
	data, err := encodeManifest(m)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, manifestFileName), data, mode)
}

// writeFileAtomic writes data to a temp file in the target's directory and
// renames it over the target.
func writeFileAtomic(target string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil { //nolint:gosec // G703: both paths are internal
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(target), err)
	}
	return nil
}
