// amplicon: a pipeline for processing and analyzing 16S rRNA
// amplicon sequencing data.
// Copyright (c) 2024 Villapol laboratory.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/villapollab/fmt-ad-w-abx/blob/master/LICENSE.txt>.

// Package tree handles the phylogenetic tree relating the sequence
// variants: Newick parsing and formatting, pruning, and orchestration
// of the external alignment and tree inference tools.
package tree

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// A Node is a node in a rooted phylogenetic tree. Tips carry the
// variant identifiers as names.
type Node struct {
	Name     string  `json:"name,omitempty"`
	Length   float64 `json:"length"`
	Children []*Node `json:"children,omitempty"`
}

// A Tree is a rooted phylogenetic tree.
type Tree struct {
	Root *Node `json:"root"`
}

// IsTip reports whether the node is a leaf.
func (n *Node) IsTip() bool {
	return len(n.Children) == 0
}

// Walk calls f for every node in depth-first order.
func (n *Node) Walk(f func(*Node)) {
	f(n)
	for _, child := range n.Children {
		child.Walk(f)
	}
}

// Tips returns the tip names in depth-first order.
func (t *Tree) Tips() []string {
	var tips []string
	t.Root.Walk(func(n *Node) {
		if n.IsTip() {
			tips = append(tips, n.Name)
		}
	})
	return tips
}

type newickParser struct {
	input string
	pos   int
}

func (p *newickParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *newickParser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *newickParser) parseName() string {
	p.skipSpace()
	if p.peek() == '\'' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] != '\'' {
			p.pos++
		}
		name := p.input[start:p.pos]
		p.pos++
		return name
	}
	start := p.pos
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ',', ')', '(', ':', ';', ' ', '\t', '\n', '\r':
			return p.input[start:p.pos]
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *newickParser) parseNode() (*Node, error) {
	p.skipSpace()
	node := new(Node)
	if p.peek() == '(' {
		p.pos++
		for {
			child, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
			p.skipSpace()
			switch p.peek() {
			case ',':
				p.pos++
				continue
			case ')':
				p.pos++
			default:
				return nil, fmt.Errorf("unbalanced parentheses at position %v", p.pos)
			}
			break
		}
	}
	node.Name = p.parseName()
	p.skipSpace()
	if p.peek() == ':' {
		p.pos++
		p.skipSpace()
		start := p.pos
		for p.pos < len(p.input) {
			c := p.input[p.pos]
			if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
				p.pos++
			} else {
				break
			}
		}
		length, err := strconv.ParseFloat(p.input[start:p.pos], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid branch length at position %v: %v", start, err)
		}
		node.Length = length
	}
	return node, nil
}

// Parse parses a tree in Newick format.
func Parse(newick string) (*Tree, error) {
	p := &newickParser{input: newick}
	root, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != ';' {
		return nil, fmt.Errorf("missing terminating semicolon at position %v", p.pos)
	}
	return &Tree{Root: root}, nil
}

func appendNewick(sb *strings.Builder, n *Node) {
	if len(n.Children) > 0 {
		sb.WriteByte('(')
		for i, child := range n.Children {
			if i > 0 {
				sb.WriteByte(',')
			}
			appendNewick(sb, child)
		}
		sb.WriteByte(')')
	}
	sb.WriteString(n.Name)
	if n.Length != 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatFloat(n.Length, 'g', -1, 64))
	}
}

// Newick formats the tree in Newick format.
func (t *Tree) Newick() string {
	var sb strings.Builder
	appendNewick(&sb, t.Root)
	sb.WriteByte(';')
	return sb.String()
}

// ReadNewick parses a Newick tree file.
func ReadNewick(filename string) (*Tree, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	tree, err := Parse(strings.TrimSpace(string(contents)))
	if err != nil {
		return nil, fmt.Errorf("%v, while parsing tree file %v", err, filename)
	}
	return tree, nil
}

// WriteNewick writes the tree to a Newick file.
func WriteNewick(filename string, t *Tree) error {
	return os.WriteFile(filename, []byte(t.Newick()+"\n"), 0666)
}

// Prune returns a copy of the tree containing only the tips in keep.
// Internal nodes left with a single child are collapsed into their
// child, adding up branch lengths.
func (t *Tree) Prune(keep map[string]bool) *Tree {
	return &Tree{Root: pruneNode(t.Root, keep)}
}

func pruneNode(n *Node, keep map[string]bool) *Node {
	if n.IsTip() {
		if keep[n.Name] {
			return &Node{Name: n.Name, Length: n.Length}
		}
		return nil
	}
	var children []*Node
	for _, child := range n.Children {
		if pruned := pruneNode(child, keep); pruned != nil {
			children = append(children, pruned)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		child := children[0]
		child.Length += n.Length
		return child
	default:
		return &Node{Name: n.Name, Length: n.Length, Children: children}
	}
}

// Validate checks that the tree tip labels are exactly the given
// identifier set.
func (t *Tree) Validate(ids []string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	tips := t.Tips()
	seen := make(map[string]bool, len(tips))
	for _, tip := range tips {
		if !want[tip] {
			return fmt.Errorf("tree tip %v does not occur in the abundance table", tip)
		}
		if seen[tip] {
			return fmt.Errorf("duplicate tree tip %v", tip)
		}
		seen[tip] = true
	}
	for _, id := range ids {
		if !seen[id] {
			return fmt.Errorf("variant %v is missing from the tree", id)
		}
	}
	return nil
}
