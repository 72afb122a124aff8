package state

import (
	"testing"
)

func TestLayerUpsertGetDelete(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.UpsertLayer(LayerRow{DocumentID: "d1", Layer: "", Status: StatusDownloaded, Size: 42, SHA256: "abc"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertLayer(LayerRow{DocumentID: "d1", Layer: "", Status: StatusDownloaded, Size: 43}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, ok, err := db.GetLayer("d1", "")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Size != 43 || got.Status != StatusDownloaded {
		t.Fatalf("unexpected row: %+v", got)
	}
	if _, ok, _ := db.GetLayer("d1", "review"); ok {
		t.Fatalf("unexpected row for other layer")
	}
	if err := db.DeleteLayer("d1", ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := db.GetLayer("d1", ""); ok {
		t.Fatalf("row should be gone")
	}
}

func TestListAndClear(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, l := range []string{"", "a", "b"} {
		if err := db.UpsertLayer(LayerRow{DocumentID: "d", Layer: l, Status: StatusDownloaded}); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := db.ListLayers()
	if err != nil || len(rows) != 3 {
		t.Fatalf("list: %d rows err=%v", len(rows), err)
	}
	if err := db.ClearLayers(); err != nil {
		t.Fatal(err)
	}
	rows, _ = db.ListLayers()
	if len(rows) != 0 {
		t.Fatalf("expected empty table, got %d", len(rows))
	}
}
