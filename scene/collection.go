package scene

import (
	"fmt"

	"github.com/mektools/rigtools/armature"
)

type ColorTag int

const (
	ColorNone ColorTag = iota
	Color01
	Color02
	Color03
	Color04
	Color05
	Color06
	Color07
	Color08
)

func (c ColorTag) String() string {
	if c <= ColorNone || c > Color08 {
		return "NONE"
	}
	return fmt.Sprintf("COLOR_%02d", int(c))
}

type Collection struct {
	Name   string
	Color  ColorTag
	Hidden bool

	objects  []Handle
	children []*Collection
	parent   *Collection
}

func (c *Collection) Objects() []Handle {
	return append([]Handle(nil), c.objects...)
}

func (c *Collection) Children() []*Collection {
	return append([]*Collection(nil), c.children...)
}

func (c *Collection) Parent() *Collection {
	return c.parent
}

func (c *Collection) Has(h Handle) bool {
	for _, o := range c.objects {
		if o == h {
			return true
		}
	}
	return false
}

func (c *Collection) Link(h Handle) {
	if !c.Has(h) {
		c.objects = append(c.objects, h)
	}
}

func (c *Collection) Unlink(h Handle) {
	for i, o := range c.objects {
		if o == h {
			c.objects = append(c.objects[:i], c.objects[i+1:]...)
			return
		}
	}
}

func (c *Collection) unlinkAll(h Handle) {
	c.Unlink(h)
	for _, ch := range c.children {
		ch.unlinkAll(h)
	}
}

// LinkChild moves child under c.
func (c *Collection) LinkChild(child *Collection) error {
	for p := c; p != nil; p = p.parent {
		if p == child {
			return fmt.Errorf("collection %s cannot contain itself", child.Name)
		}
	}
	child.detach()
	child.parent = c
	c.children = append(c.children, child)
	return nil
}

func (c *Collection) detach() {
	if p := c.parent; p != nil {
		for i, o := range p.children {
			if o == c {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	c.parent = nil
}

func (c *Collection) walk(fn func(*Collection)) {
	for _, ch := range c.children {
		fn(ch)
		ch.walk(fn)
	}
}

// Collections returns every collection below the root, depth first.
func (s *Scene) Collections() []*Collection {
	var r []*Collection
	s.Root.walk(func(c *Collection) { r = append(r, c) })
	return r
}

func (s *Scene) FindCollection(name string) *Collection {
	for _, c := range s.Collections() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// NewCollection creates a collection under the root with a unique name.
func (s *Scene) NewCollection(name string) *Collection {
	c := &Collection{Name: armature.UniqueName(name, func(n string) bool {
		return s.FindCollection(n) != nil
	})}
	_ = s.Root.LinkChild(c)
	return c
}

// CollectionsOf returns every collection linking h, the root included.
func (s *Scene) CollectionsOf(h Handle) []*Collection {
	var r []*Collection
	if s.Root.Has(h) {
		r = append(r, s.Root)
	}
	for _, c := range s.Collections() {
		if c.Has(h) {
			r = append(r, c)
		}
	}
	return r
}

// CollectionOf returns the first non-root collection linking h, or nil.
func (s *Scene) CollectionOf(h Handle) *Collection {
	for _, c := range s.Collections() {
		if c.Has(h) {
			return c
		}
	}
	return nil
}

// MoveToCollection unlinks each object from its collections and links it to col.
func (s *Scene) MoveToCollection(hs []Handle, col *Collection) {
	for _, h := range hs {
		if !s.Alive(h) {
			continue
		}
		for _, c := range s.CollectionsOf(h) {
			c.Unlink(h)
		}
		col.Link(h)
	}
}

// DissolveCollection moves the objects and child collections of c to the
// root and removes c.
func (s *Scene) DissolveCollection(c *Collection) {
	for _, h := range c.Objects() {
		c.Unlink(h)
		s.Root.Link(h)
	}
	for _, ch := range c.Children() {
		_ = s.Root.LinkChild(ch)
	}
	c.detach()
}

// RemoveCollection unlinks c and its objects. Objects stay in the scene.
func (s *Scene) RemoveCollection(c *Collection) {
	for _, ch := range c.Children() {
		_ = s.Root.LinkChild(ch)
	}
	c.objects = nil
	c.detach()
}
