// Node: a named tree of objects providing the namespace that Channels and
// Devices live in. Owned children are destroyed with their parent; linked
// children are weak references resolved lazily by name.

package sihd_util

import (
	"fmt"
	"strings"
	"sync"
)

// Named is the minimal capability every tree participant offers.
type Named interface {
	Name() string
}

// Node is embedded by anything that wants to participate in the tree
// (Device, Channel). It never inherits — it is composed in, following a
// "capability set over inheritance" strategy.
type Node struct {
	mu sync.RWMutex

	name   string
	parent *Node

	// Owned children: this Node destroys them. Keyed by name.
	owned map[string]Named
	// Linked children: weak references, stored as resolved-on-demand paths.
	links map[string]string

	self Named // the concrete value embedding this Node, for lookups to return
}

func NewNode(name string, self Named) *Node {
	return &Node{
		name:  name,
		owned: make(map[string]Named),
		links: make(map[string]string),
		self:  self,
	}
}

func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// AsNode lets anything embedding *Node hand its underlying node back to
// tree-walking code, including types defined in other packages (Channel,
// Device) — unlike an unexported method, this is promoted across package
// boundaries by embedding.
func (n *Node) AsNode() *Node { return n }

func nodeOf(v Named) *Node {
	if hn, ok := v.(interface{ AsNode() *Node }); ok {
		return hn.AsNode()
	}
	if n, ok := v.(*Node); ok {
		return n
	}
	return nil
}

// AddChild attaches an owned child under the given name.
func (n *Node) AddChild(name string, child Named) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.owned[name]; exists {
		return fmt.Errorf("sihd_util: node %q already has a child named %q", n.name, name)
	}
	n.owned[name] = child
	if cn := nodeOf(child); cn != nil {
		cn.mu.Lock()
		cn.parent = n
		cn.mu.Unlock()
	}
	return nil
}

func (n *Node) RemoveChild(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.owned, name)
	delete(n.links, name)
}

// AddLink registers a symbolic, name-to-path reference. It is resolved
// lazily by Resolve/Find, never stored as a raw pointer.
func (n *Node) AddLink(name string, targetPath string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[name] = targetPath
}

// root walks up to the tree root, used to resolve absolute paths and links.
func (n *Node) root() *Node {
	cur := n
	for {
		cur.mu.RLock()
		p := cur.parent
		cur.mu.RUnlock()
		if p == nil {
			return cur
		}
		cur = p
	}
}

func splitPath(path string) []string {
	path = strings.ReplaceAll(path, ".", "/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Find looks up a descendant by a '.'- or '/'-delimited path, following
// symbolic links as encountered. An absolute path (leading '/' or '.')
// starts from the tree root; otherwise it is relative to n.
func (n *Node) Find(path string) (Named, error) {
	start := n
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, ".") {
		start = n.root()
	}
	parts := splitPath(path)
	var cur Named = start.self
	if cur == nil {
		cur = start
	}
	curNode := start
	for _, part := range parts {
		curNode.mu.RLock()
		child, isOwned := curNode.owned[part]
		linkTarget, isLink := curNode.links[part]
		curNode.mu.RUnlock()

		switch {
		case isOwned:
			cur = child
			curNode = nodeOf(child)
			if curNode == nil {
				return nil, fmt.Errorf("sihd_util: %q does not embed a Node", part)
			}
		case isLink:
			resolved, err := n.root().Find(linkTarget)
			if err != nil {
				return nil, fmt.Errorf("sihd_util: link %q -> %q: %w", part, linkTarget, err)
			}
			cur = resolved
			curNode = nodeOf(resolved)
			if curNode == nil {
				return nil, fmt.Errorf("sihd_util: link target %q does not embed a Node", linkTarget)
			}
		default:
			return nil, fmt.Errorf("sihd_util: no such child %q under %q", part, curNode.name)
		}
	}
	return cur, nil
}

// Resolve walks every registered link and verifies it points somewhere
// reachable; Run calls it on the root once the tree is built, before any
// device is started.
func (n *Node) Resolve() error {
	n.mu.RLock()
	links := make(map[string]string, len(n.links))
	for k, v := range n.links {
		links[k] = v
	}
	owned := make([]Named, 0, len(n.owned))
	for _, c := range n.owned {
		owned = append(owned, c)
	}
	n.mu.RUnlock()

	for name, target := range links {
		if _, err := n.root().Find(target); err != nil {
			return fmt.Errorf("sihd_util: unresolved link %q -> %q: %w", name, target, err)
		}
	}
	for _, c := range owned {
		if cn := nodeOf(c); cn != nil {
			if err := cn.Resolve(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Children returns the names of the owned children, for iteration (e.g. a
// Device listing its Channels).
func (n *Node) Children() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.owned))
	for name := range n.owned {
		names = append(names, name)
	}
	return names
}
