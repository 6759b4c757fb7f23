package treestore

import (
	"encoding/base64"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// yamlNode is the persisted shape of one record. Handles are not persisted;
// loading allocates fresh ones.
type yamlNode struct {
	Kind     string         `yaml:"kind"`
	Props    map[string]any `yaml:"props,omitempty"`
	Children []yamlNode     `yaml:"children,omitempty"`
}

const bytesPrefix = "!bytes:"

// SaveYAML writes the subtree rooted at root.
func (s *Store) SaveYAML(w io.Writer, root Handle) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2) // Match yq.
	defer enc.Close()
	return enc.Encode(s.toNode(root))
}

func (s *Store) toNode(h Handle) yamlNode {
	r := s.rec(h)
	n := yamlNode{Kind: string(r.kind)}
	if len(r.props) > 0 {
		n.Props = map[string]any{}
		keys := make([]string, 0, len(r.props))
		for k := range r.props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := r.props[k]
			if b, ok := v.([]byte); ok {
				v = bytesPrefix + base64.StdEncoding.EncodeToString(b)
			}
			n.Props[k] = v
		}
	}
	for _, c := range r.children {
		n.Children = append(n.Children, s.toNode(c))
	}
	return n
}

// LoadYAML reads a subtree snapshot into the store and returns the handle
// of the re-created root. Records are freshly allocated and reattached.
func (s *Store) LoadYAML(r io.Reader) (Handle, error) {
	var n yamlNode
	if err := yaml.NewDecoder(r).Decode(&n); err != nil {
		return 0, fmt.Errorf("could not decode: %v", err)
	}
	return s.fromNode(n)
}

func (s *Store) fromNode(n yamlNode) (Handle, error) {
	h := s.NewRecord(Kind(n.Kind))
	for k, v := range n.Props {
		switch t := v.(type) {
		case string:
			if len(t) > len(bytesPrefix) && t[:len(bytesPrefix)] == bytesPrefix {
				b, err := base64.StdEncoding.DecodeString(t[len(bytesPrefix):])
				if err != nil {
					return 0, fmt.Errorf("bad bytes property %q: %v", k, err)
				}
				s.setProp(h, k, b)
				continue
			}
			s.setProp(h, k, t)
		case bool, int, float64:
			s.setProp(h, k, t)
		default:
			return 0, fmt.Errorf("unsupported property type %T for %q", v, k)
		}
	}
	for _, cn := range n.Children {
		c, err := s.fromNode(cn)
		if err != nil {
			return 0, err
		}
		s.insertChild(h, c, len(s.rec(h).children))
	}
	return h, nil
}
