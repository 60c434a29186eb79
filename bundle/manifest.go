package bundle

import (
	"bytes"
	"os"

	"github.com/llvm-library/papersdb/normal"
	"github.com/segmentio/encoding/json"
)

// Manifest is the index of paper files served to clients. Keys other than
// dataVersion and paperFiles are kept as they are.
type Manifest map[string]json.RawMessage

// ReadManifest reads a manifest file; a missing file yields an empty manifest.
func ReadManifest(filename string) (Manifest, error) {
	m := make(Manifest)
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DataVersion returns the version string, or the empty string.
func (m Manifest) DataVersion() string {
	var s string
	if err := json.Unmarshal(m["dataVersion"], &s); err != nil {
		return ""
	}
	return normal.CollapseWS(s)
}

// PaperFiles returns the list of referenced paper files; anything but a
// list of strings counts as empty.
func (m Manifest) PaperFiles() []string {
	var files []string
	if err := json.Unmarshal(m["paperFiles"], &files); err != nil {
		return nil
	}
	return files
}

func (m Manifest) set(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m[key] = b
	return nil
}

// UpdateManifest points the manifest at exactly one output file. The data
// version is only replaced when bump is set, typically when the output
// changed. The file is written only if something changed. Returns whether
// the manifest changed and the effective data version.
func UpdateManifest(filename, outputName, dataVersion string, bump bool) (bool, string, error) {
	m, err := ReadManifest(filename)
	if err != nil {
		return false, "", err
	}
	var changed bool
	if files := m.PaperFiles(); len(files) != 1 || files[0] != outputName {
		if err := m.set("paperFiles", []string{outputName}); err != nil {
			return false, "", err
		}
		changed = true
	}
	if bump && m.DataVersion() != dataVersion {
		if err := m.set("dataVersion", dataVersion); err != nil {
			return false, "", err
		}
		changed = true
	}
	if changed {
		data, err := Marshal(m)
		if err != nil {
			return false, "", err
		}
		if _, err := WriteIfChanged(filename, data); err != nil {
			return false, "", err
		}
	}
	return changed, m.DataVersion(), nil
}
