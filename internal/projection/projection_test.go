package projection

import (
	"testing"

	"github.com/jxwalker/docfetch/internal/engine"
)

func fixture() (*Projection, []*engine.Descriptor) {
	d := []*engine.Descriptor{
		engine.NewDescriptor("d1", ""),
		engine.NewDescriptor("d1", "review"),
		engine.NewDescriptor("d2", ""),
	}
	p := New()
	p.ReplaceAll([]Section{
		{Title: "First", DocumentID: "d1", Rows: []Row{{Descriptor: d[0], Token: "t0", HasToken: true}, {Descriptor: d[1], Token: "t1", HasToken: true}}},
		{Title: "Empty", DocumentID: "d3"},
		{Title: "Second", DocumentID: "d2", Rows: []Row{{Descriptor: d[2], Token: "t2", HasToken: true}}},
	})
	return p, d
}

func TestReplaceAllKeepsOrderAndDropsEmpty(t *testing.T) {
	p, _ := fixture()
	s := p.Sections()
	if len(s) != 2 || s[0].Title != "First" || s[1].Title != "Second" {
		t.Fatalf("unexpected sections %+v", s)
	}
	if p.Len() != 3 {
		t.Fatalf("Len=%d", p.Len())
	}
	if s[0].Rows[0].Title() != DefaultLayerTitle || s[0].Rows[1].Title() != "review" {
		t.Fatalf("unexpected row titles")
	}
}

func TestFindRowMatchesByIdentity(t *testing.T) {
	p, d := fixture()
	lookalike := engine.NewDescriptor("d1", "review")
	if _, ok := p.FindRow(ByDescriptor(lookalike)); ok {
		t.Fatalf("an equal but distinct descriptor must not match")
	}
	pos, ok := p.FindRow(ByDescriptor(d[1]))
	if !ok || pos != (Position{Section: 0, Row: 1}) {
		t.Fatalf("FindRow=%+v ok=%v", pos, ok)
	}
	pos, ok = p.FindRow(ByDocumentID("d2"))
	if !ok || pos != (Position{Section: 1, Row: 0}) {
		t.Fatalf("FindRow by document=%+v ok=%v", pos, ok)
	}
}

func TestUpdateTokenNotifies(t *testing.T) {
	p, d := fixture()
	var changes []Change
	p.Subscribe(func(c Change) { changes = append(changes, c) })

	if !p.UpdateToken(ByDescriptor(d[2]), "", false) {
		t.Fatalf("UpdateToken should find the row")
	}
	r, _ := p.Row(Position{Section: 1, Row: 0})
	if r.HasToken || r.Token != "" {
		t.Fatalf("token should be cleared: %+v", r)
	}
	p.UpdateToken(ByDescriptor(d[2]), "fresh", true)
	r, _ = p.Row(Position{Section: 1, Row: 0})
	if !r.HasToken || r.Token != "fresh" {
		t.Fatalf("token should be replaced: %+v", r)
	}
	if len(changes) != 2 || changes[0].Kind != ChangeRow {
		t.Fatalf("unexpected changes %+v", changes)
	}
	if p.UpdateToken(ByDescriptor(engine.NewDescriptor("x", "")), "t", true) {
		t.Fatalf("unknown descriptor should not match")
	}
}

func TestRemoveRowDropsEmptiedSection(t *testing.T) {
	p, d := fixture()
	var changes []Change
	p.Subscribe(func(c Change) { changes = append(changes, c) })

	if !p.RemoveRow(ByDescriptor(d[2])) {
		t.Fatalf("RemoveRow should succeed")
	}
	if s := p.Sections(); len(s) != 1 || s[0].Title != "First" {
		t.Fatalf("section should be gone: %+v", s)
	}
	if !changes[0].SectionRemoved {
		t.Fatalf("change should report the removed section")
	}
	if n := p.RemoveRows(ByDocumentID("d1")); n != 2 {
		t.Fatalf("RemoveRows=%d", n)
	}
	if p.Len() != 0 || len(p.Sections()) != 0 {
		t.Fatalf("projection should be empty")
	}
}

func TestSectionsReturnsCopy(t *testing.T) {
	p, _ := fixture()
	s := p.Sections()
	s[0].Rows[0].Token = "mutated"
	r, _ := p.Row(Position{})
	if r.Token != "t0" {
		t.Fatalf("Sections must not alias internal rows")
	}
}
