// Package filetree models the file layout of a package as an arena of nodes.
//
// Nodes never point at their parent. Children are stored as lists of node ids
// and parent lookup goes through an index kept in sync with every structural
// change, so a tree can be flattened to records and rebuilt without cycles.
package filetree

import (
	"path/filepath"
	"strings"
	"time"
)

// NodeID identifies a node for the lifetime of a Tree.
type NodeID string

// Root is the pseudo target meaning "top level of the tree".
const Root NodeID = ""

const (
	// NewFolderName is the base name of folders created with NewFolder.
	NewFolderName = "NEW FOLDER"

	placeholderName = "no_namefile"
)

// Node is a file or directory destined for the package.
type Node struct {
	ID           NodeID
	SourcePath   string
	OutputName   string
	IsDirectory  bool
	IsRootFixed  bool
	LastModified time.Time
	SizeBytes    int64
	Children     []NodeID
}

// DisplayName is the name the node takes inside the package.
func (n Node) DisplayName() string {
	if strings.TrimSpace(n.OutputName) != "" {
		return n.OutputName
	}
	if strings.TrimSpace(n.SourcePath) != "" {
		return filepath.Base(n.SourcePath)
	}
	return placeholderName
}

func (n *Node) clone() *Node {
	c := *n
	c.Children = append([]NodeID(nil), n.Children...)
	return &c
}
