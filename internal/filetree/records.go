package filetree

import (
	"fmt"
	"time"
)

// Record is the flat, serializable form of a Node.
type Record struct {
	ID           string    `toml:"id"`
	Parent       string    `toml:"parent,omitempty"`
	SourcePath   string    `toml:"source_path,omitempty"`
	OutputName   string    `toml:"output_name,omitempty"`
	IsDirectory  bool      `toml:"is_directory"`
	IsRootFixed  bool      `toml:"is_root_fixed,omitempty"`
	LastModified time.Time `toml:"last_modified"`
	SizeBytes    int64     `toml:"size_bytes"`
}

// Records flattens the tree in depth-first order so that every parent
// precedes its children.
func (t *Tree) Records() []Record {
	records := make([]Record, 0, len(t.nodes))
	t.walkIDs(t.roots, func(id NodeID) {
		n := t.nodes[id]
		records = append(records, Record{
			ID:           string(n.ID),
			Parent:       string(t.parents[id]),
			SourcePath:   n.SourcePath,
			OutputName:   n.OutputName,
			IsDirectory:  n.IsDirectory,
			IsRootFixed:  n.IsRootFixed,
			LastModified: n.LastModified,
			SizeBytes:    n.SizeBytes,
		})
	})
	return records
}

// FromRecords rebuilds a tree from Records output.
func FromRecords(records []Record) (*Tree, error) {
	t := New()
	for i, r := range records {
		id := NodeID(r.ID)
		if id == Root {
			id = newID()
		}
		if _, dup := t.nodes[id]; dup {
			return nil, fmt.Errorf("record %d: duplicate node id %q", i, r.ID)
		}

		parent := NodeID(r.Parent)
		if parent != Root {
			p, ok := t.nodes[parent]
			if !ok {
				return nil, fmt.Errorf("record %d: parent %q must precede its children", i, r.Parent)
			}
			if !p.IsDirectory {
				return nil, fmt.Errorf("record %d: parent %q is not a directory", i, r.Parent)
			}
		}

		t.insert(&Node{
			ID:           id,
			SourcePath:   r.SourcePath,
			OutputName:   r.OutputName,
			IsDirectory:  r.IsDirectory,
			IsRootFixed:  r.IsRootFixed,
			LastModified: r.LastModified,
			SizeBytes:    r.SizeBytes,
		}, parent)
	}
	return t, nil
}
