// Package config holds CamillaDSP configuration documents as open-ended YAML trees.
//
// The client never interprets a configuration: it reads it from the engine,
// lets the caller inspect or edit it, and writes it back. Documents are kept as
// yaml.v3 node trees so that fields unknown to the caller, key order and scalar
// styles survive a read-modify-write cycle unchanged.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyPath is returned by Set when no path element is given.
var ErrEmptyPath = errors.New("config: empty path")

// PathError reports a path that cannot be followed through a document.
type PathError struct {
	Path    []string
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("config: path %q: %s", strings.Join(e.Path, "."), e.Message)
}

// Document is a configuration tree: mappings, sequences and scalars.
type Document struct {
	root yaml.Node // always a DocumentNode with exactly one child
}

// Parse reads a YAML document. Empty input yields an empty mapping.
func Parse(text []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(text, &doc.root); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if doc.root.Kind != yaml.DocumentNode || len(doc.root.Content) == 0 {
		doc.root = documentNode(newMapping())
	}
	return doc, nil
}

// ParseString is Parse for string input.
func ParseString(text string) (*Document, error) {
	return Parse([]byte(text))
}

// FromValue builds a document from any value yaml.v3 can encode, typically a
// map[string]any or a struct with yaml tags.
func FromValue(v any) (*Document, error) {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return &Document{root: documentNode(&node)}, nil
}

// New returns an empty mapping document.
func New() *Document {
	return &Document{root: documentNode(newMapping())}
}

// Root returns the top-level node of the document.
func (d *Document) Root() *yaml.Node {
	return d.root.Content[0]
}

// Marshal renders the document as YAML text with two-space indentation.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// String renders the document as YAML text. Rendering errors yield an empty string.
func (d *Document) String() string {
	text, err := d.Marshal()
	if err != nil {
		return ""
	}
	return string(text)
}

// Decode decodes the document into v, as yaml.Unmarshal would.
func (d *Document) Decode(v any) error {
	if err := d.root.Decode(v); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

// Value returns the document as a generic tree of map[string]any, []any and scalars.
func (d *Document) Value() (any, error) {
	var v any
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Lookup returns the node at path. Path elements are mapping keys, or decimal
// indices when the node at that level is a sequence.
func (d *Document) Lookup(path ...string) (*yaml.Node, bool) {
	node := d.Root()
	for _, key := range path {
		node = resolve(node)
		switch node.Kind {
		case yaml.MappingNode:
			i := mappingIndex(node, key)
			if i < 0 {
				return nil, false
			}
			node = node.Content[i]
		case yaml.SequenceNode:
			i, err := sequenceIndex(node, key)
			if err != nil {
				return nil, false
			}
			node = node.Content[i]
		default:
			return nil, false
		}
	}
	return resolve(node), true
}

// Get decodes the value at path into a generic value.
func (d *Document) Get(path ...string) (any, bool) {
	node, ok := d.Lookup(path...)
	if !ok {
		return nil, false
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// Set stores value at path, creating intermediate mappings as needed.
// Null intermediate nodes are replaced by mappings; other scalars are an error.
func (d *Document) Set(value any, path ...string) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}

	var valueNode yaml.Node
	if err := valueNode.Encode(value); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	node := d.Root()
	for depth, key := range path {
		node = resolve(node)
		if isNull(node) {
			*node = *newMapping()
		}

		var i int
		switch node.Kind {
		case yaml.MappingNode:
			i = mappingIndex(node, key)
			if i < 0 {
				node.Content = append(node.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
					newMapping(),
				)
				i = len(node.Content) - 1
			}
		case yaml.SequenceNode:
			var err error
			i, err = sequenceIndex(node, key)
			if err != nil {
				return &PathError{Path: path[:depth+1], Message: err.Error()}
			}
		default:
			return &PathError{Path: path[:depth+1], Message: "parent is not a mapping or sequence"}
		}

		if depth == len(path)-1 {
			node.Content[i] = &valueNode
			return nil
		}
		node = node.Content[i]
	}
	return nil
}

// Delete removes the mapping key or sequence item at path. It reports whether
// anything was removed.
func (d *Document) Delete(path ...string) bool {
	if len(path) == 0 {
		return false
	}
	parent, ok := d.Lookup(path[:len(path)-1]...)
	if !ok {
		return false
	}
	key := path[len(path)-1]

	switch parent.Kind {
	case yaml.MappingNode:
		i := mappingIndex(parent, key)
		if i < 0 {
			return false
		}
		parent.Content = append(parent.Content[:i-1], parent.Content[i+1:]...)
		return true
	case yaml.SequenceNode:
		i, err := sequenceIndex(parent, key)
		if err != nil {
			return false
		}
		parent.Content = append(parent.Content[:i], parent.Content[i+1:]...)
		return true
	}
	return false
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	return &Document{root: *cloneNode(&d.root)}
}

func documentNode(content *yaml.Node) yaml.Node {
	return yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{content}}
}

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

// mappingIndex returns the index in Content of the value for key, or -1.
func mappingIndex(node *yaml.Node, key string) int {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return i + 1
		}
	}
	return -1
}

func sequenceIndex(node *yaml.Node, key string) (int, error) {
	i, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence index %q", key)
	}
	if i < 0 || i >= len(node.Content) {
		return 0, fmt.Errorf("sequence index %d out of range", i)
	}
	return i, nil
}

func cloneNode(node *yaml.Node) *yaml.Node {
	if node == nil {
		return nil
	}
	clone := *node
	if len(node.Content) > 0 {
		clone.Content = make([]*yaml.Node, len(node.Content))
		for i, child := range node.Content {
			clone.Content[i] = cloneNode(child)
		}
	}
	return &clone
}
