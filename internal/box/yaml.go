package box

import "gopkg.in/yaml.v3"

// YAML renders the subtree rooted at r as an ordered YAML node. It is meant
// for inspection: attributes are listed under "@attrs", intrinsic content
// under "#text" and null as the YAML null tag.
func (t *Tree) YAML(r Ref) *yaml.Node {
	n := t.nodes[r]
	switch n.Kind {
	case Null:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case Scalar:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.Text}
	case Unkeyed:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, e := range n.Elements {
			seq.Content = append(seq.Content, t.YAML(e.Ref))
		}
		return seq
	}

	m := &yaml.Node{Kind: yaml.MappingNode}
	if n.Kind == Choice {
		m.Tag = "!choice"
	}
	if len(n.Attrs) > 0 || len(n.Namespaces) > 0 {
		attrs := &yaml.Node{Kind: yaml.MappingNode}
		for _, ns := range n.Namespaces {
			key := "xmlns"
			if ns.Key != "" {
				key += ":" + ns.Key
			}
			attrs.Content = append(attrs.Content, str(key), str(ns.Value))
		}
		for _, a := range n.Attrs {
			attrs.Content = append(attrs.Content, str(a.Key), str(a.Value))
		}
		m.Content = append(m.Content, str("@attrs"), attrs)
	}
	// Repeated keys are grouped into one sequence at the first occurrence.
	var order []string
	groups := make(map[string][]*yaml.Node)
	for _, e := range n.Elements {
		key := e.Key
		if key == IntrinsicKey {
			key = "#text"
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t.YAML(e.Ref))
	}
	for _, key := range order {
		nodes := groups[key]
		if len(nodes) == 1 {
			m.Content = append(m.Content, str(key), nodes[0])
			continue
		}
		m.Content = append(m.Content, str(key), &yaml.Node{Kind: yaml.SequenceNode, Content: nodes})
	}
	return m
}

func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
