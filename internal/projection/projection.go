// Package projection holds the section-grouped rows shown by the presentation
// layer. It is not safe for concurrent use; callers confine it to the
// coordinating goroutine.
package projection

import (
	"github.com/jxwalker/docfetch/internal/engine"
)

// DefaultLayerTitle labels the unnamed layer of a document.
const DefaultLayerTitle = "<Default Layer>"

// Row is one layer entry. Token is meaningful only when HasToken is set.
type Row struct {
	Descriptor *engine.Descriptor
	Token      string
	HasToken   bool
}

func (r Row) Title() string {
	if r.Descriptor == nil || r.Descriptor.LayerName() == "" {
		return DefaultLayerTitle
	}
	return r.Descriptor.LayerName()
}

type Section struct {
	Title      string
	DocumentID string
	Rows       []Row
}

type Position struct {
	Section int
	Row     int
}

// Predicate selects rows by their descriptor.
type Predicate func(*engine.Descriptor) bool

// ByDescriptor matches the row holding exactly d.
func ByDescriptor(d *engine.Descriptor) Predicate {
	return func(x *engine.Descriptor) bool { return x == d }
}

// ByDocumentID matches every row of a document.
func ByDocumentID(id string) Predicate {
	return func(x *engine.Descriptor) bool { return x != nil && x.DocumentID() == id }
}

type ChangeKind int

const (
	// ChangeReset means every section was replaced.
	ChangeReset ChangeKind = iota
	// ChangeRow means the row at Position should be re-rendered.
	ChangeRow
	// ChangeRemoved means the row at Position is gone; SectionRemoved tells whether its section went with it.
	ChangeRemoved
)

type Change struct {
	Kind           ChangeKind
	Position       Position
	SectionRemoved bool
}

type Projection struct {
	sections []Section
	subs     []func(Change)
}

func New() *Projection { return &Projection{} }

// Subscribe registers fn to be called after every mutation.
func (p *Projection) Subscribe(fn func(Change)) {
	p.subs = append(p.subs, fn)
}

func (p *Projection) notify(c Change) {
	for _, fn := range p.subs {
		fn(c)
	}
}

// ReplaceAll swaps in a new list. Sections without rows are dropped.
func (p *Projection) ReplaceAll(sections []Section) {
	next := make([]Section, 0, len(sections))
	for _, s := range sections {
		if len(s.Rows) == 0 {
			continue
		}
		rows := make([]Row, len(s.Rows))
		copy(rows, s.Rows)
		s.Rows = rows
		next = append(next, s)
	}
	p.sections = next
	p.notify(Change{Kind: ChangeReset})
}

// Sections returns a copy of the current list.
func (p *Projection) Sections() []Section {
	out := make([]Section, len(p.sections))
	for i, s := range p.sections {
		rows := make([]Row, len(s.Rows))
		copy(rows, s.Rows)
		s.Rows = rows
		out[i] = s
	}
	return out
}

// Len returns the number of rows across all sections.
func (p *Projection) Len() int {
	n := 0
	for _, s := range p.sections {
		n += len(s.Rows)
	}
	return n
}

// Row returns the row at pos.
func (p *Projection) Row(pos Position) (Row, bool) {
	if pos.Section < 0 || pos.Section >= len(p.sections) {
		return Row{}, false
	}
	rows := p.sections[pos.Section].Rows
	if pos.Row < 0 || pos.Row >= len(rows) {
		return Row{}, false
	}
	return rows[pos.Row], true
}

// Each visits rows in display order until fn returns false.
func (p *Projection) Each(fn func(Position, Section, Row) bool) {
	for si, s := range p.sections {
		for ri, r := range s.Rows {
			if !fn(Position{Section: si, Row: ri}, s, r) {
				return
			}
		}
	}
}

// FindRow returns the position of the first row matching pred.
func (p *Projection) FindRow(pred Predicate) (Position, bool) {
	for si, s := range p.sections {
		for ri, r := range s.Rows {
			if pred(r.Descriptor) {
				return Position{Section: si, Row: ri}, true
			}
		}
	}
	return Position{}, false
}

// UpdateToken replaces the token of the first matching row; ok=false clears it.
func (p *Projection) UpdateToken(pred Predicate, token string, ok bool) bool {
	pos, found := p.FindRow(pred)
	if !found {
		return false
	}
	r := &p.sections[pos.Section].Rows[pos.Row]
	if ok {
		r.Token, r.HasToken = token, true
	} else {
		r.Token, r.HasToken = "", false
	}
	p.notify(Change{Kind: ChangeRow, Position: pos})
	return true
}

// Touch asks subscribers to re-render the first matching row.
func (p *Projection) Touch(pred Predicate) bool {
	pos, found := p.FindRow(pred)
	if found {
		p.notify(Change{Kind: ChangeRow, Position: pos})
	}
	return found
}

// RemoveRow deletes the first matching row, and its section once empty.
func (p *Projection) RemoveRow(pred Predicate) bool {
	pos, found := p.FindRow(pred)
	if !found {
		return false
	}
	s := &p.sections[pos.Section]
	s.Rows = append(s.Rows[:pos.Row:pos.Row], s.Rows[pos.Row+1:]...)
	emptied := len(s.Rows) == 0
	if emptied {
		p.sections = append(p.sections[:pos.Section:pos.Section], p.sections[pos.Section+1:]...)
	}
	p.notify(Change{Kind: ChangeRemoved, Position: pos, SectionRemoved: emptied})
	return true
}

// RemoveRows deletes every matching row and reports how many went.
func (p *Projection) RemoveRows(pred Predicate) int {
	n := 0
	for p.RemoveRow(pred) {
		n++
	}
	return n
}
