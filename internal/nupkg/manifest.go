// Package nupkg builds the versioned package archive handed to releasify.
package nupkg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"squirrelctl/internal/filetree"
)

// InstallRoot is the directory inside the package that receives the tree.
const InstallRoot = "lib/net45"

var (
	ErrDuplicateTarget = errors.New("two files share the same package path")
	ErrMissingSource   = errors.New("file has no source path")
)

// Metadata is the package identity written to the nuspec.
type Metadata struct {
	ID          string
	Version     string
	Title       string
	Authors     string
	Description string
}

// Entry maps a source file to its path inside the package.
type Entry struct {
	Source string
	Target string
}

// FileName returns the archive name for id and version.
func FileName(id, version string) string {
	return id + "." + version + ".nupkg"
}

// Entries walks tree depth-first and returns one entry per file. Directories
// only contribute to the target prefix of their descendants.
func Entries(tree *filetree.Tree) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]string)

	err := tree.Walk(func(n filetree.Node, dir []string) error {
		if n.IsDirectory {
			return nil
		}
		if strings.TrimSpace(n.SourcePath) == "" {
			return fmt.Errorf("%s: %w", n.DisplayName(), ErrMissingSource)
		}

		target := path.Join(append(append([]string{InstallRoot}, dir...), n.DisplayName())...)
		key := strings.ToLower(target)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%s (%s, %s): %w", target, prev, n.SourcePath, ErrDuplicateTarget)
		}
		seen[key] = n.SourcePath

		entries = append(entries, Entry{Source: n.SourcePath, Target: target})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

const (
	nuspecNamespace       = "http://schemas.microsoft.com/packaging/2010/07/nuspec.xsd"
	contentTypesNamespace = "http://schemas.openxmlformats.org/package/2006/content-types"
	relsNamespace         = "http://schemas.openxmlformats.org/package/2006/relationships"
	manifestRelType       = "http://schemas.microsoft.com/packaging/2010/07/manifest"

	relsContentType   = "application/vnd.openxmlformats-package.relationships+xml"
	binaryContentType = "application/octet"
)

type nuspec struct {
	XMLName  xml.Name       `xml:"package"`
	Xmlns    string         `xml:"xmlns,attr"`
	Metadata nuspecMetadata `xml:"metadata"`
}

type nuspecMetadata struct {
	ID                       string `xml:"id"`
	Version                  string `xml:"version"`
	Title                    string `xml:"title,omitempty"`
	Authors                  string `xml:"authors"`
	RequireLicenseAcceptance bool   `xml:"requireLicenseAcceptance"`
	Description              string `xml:"description"`
}

type contentTypes struct {
	XMLName   xml.Name          `xml:"Types"`
	Xmlns     string            `xml:"xmlns,attr"`
	Defaults  []contentDefault  `xml:"Default"`
	Overrides []contentOverride `xml:"Override"`
}

type contentDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type contentOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type relationships struct {
	XMLName       xml.Name       `xml:"Relationships"`
	Xmlns         string         `xml:"xmlns,attr"`
	Relationships []relationship `xml:"Relationship"`
}

type relationship struct {
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
	ID     string `xml:"Id,attr"`
}

func marshalXML(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func nuspecDocument(meta Metadata) ([]byte, error) {
	return marshalXML(nuspec{
		Xmlns: nuspecNamespace,
		Metadata: nuspecMetadata{
			ID:          meta.ID,
			Version:     meta.Version,
			Title:       meta.Title,
			Authors:     meta.Authors,
			Description: meta.Description,
		},
	})
}

// contentTypesDocument declares a default per extension and an override for
// every part without one.
func contentTypesDocument(parts []string) ([]byte, error) {
	doc := contentTypes{
		Xmlns: contentTypesNamespace,
		Defaults: []contentDefault{
			{Extension: "rels", ContentType: relsContentType},
			{Extension: "nuspec", ContentType: binaryContentType},
		},
	}
	known := map[string]bool{"rels": true, "nuspec": true}
	for _, part := range parts {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(part)), ".")
		if ext == "" {
			doc.Overrides = append(doc.Overrides, contentOverride{PartName: "/" + part, ContentType: binaryContentType})
			continue
		}
		if known[ext] {
			continue
		}
		known[ext] = true
		doc.Defaults = append(doc.Defaults, contentDefault{Extension: ext, ContentType: binaryContentType})
	}
	return marshalXML(doc)
}

func relationshipsDocument(nuspecPart, id string) ([]byte, error) {
	return marshalXML(relationships{
		Xmlns: relsNamespace,
		Relationships: []relationship{
			{Type: manifestRelType, Target: "/" + nuspecPart, ID: id},
		},
	})
}

// partName escapes each segment of target the way package part names are
// stored in the archive.
func partName(target string) string {
	segments := strings.Split(target, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
