package cache

import (
	"reflect"
	"testing"
)

type item struct {
	ID    string
	Count int
	Tags  []string
}

func (i item) EntityID() string { return i.ID }

func (i item) Clone() item {
	c := i
	if i.Tags != nil {
		c.Tags = append([]string(nil), i.Tags...)
	}
	return c
}

func ids(pages []Page[item]) [][]string {
	out := make([][]string, len(pages))
	for p, page := range pages {
		out[p] = []string{}
		for _, it := range page.Items {
			out[p] = append(out[p], it.ID)
		}
	}
	return out
}

func TestStore_PagesAbsentVersusEmpty(t *testing.T) {
	s := NewStore[item]()
	scope := ChannelFeed("c1")

	if _, ok := s.Pages(scope); ok {
		t.Fatal("expected absent scope before any fetch")
	}

	s.SetPages(scope, nil)
	pages, ok := s.Pages(scope)
	if !ok {
		t.Fatal("expected scope to be present after SetPages")
	}
	if len(pages) != 0 {
		t.Fatalf("expected no pages, got %d", len(pages))
	}
}

func TestStore_InsertAtHead(t *testing.T) {
	tests := []struct {
		name    string
		initial []Page[item]
		want    [][]string
		cursor  string
	}{
		{
			name:    "empty scope creates a single page",
			initial: nil,
			want:    [][]string{{"new"}},
		},
		{
			name: "prepends to first page and keeps its cursor",
			initial: []Page[item]{
				{Items: []item{{ID: "a"}, {ID: "b"}}, NextCursor: "cur1"},
				{Items: []item{{ID: "c"}}},
			},
			want:   [][]string{{"new", "a", "b"}, {"c"}},
			cursor: "cur1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore[item]()
			scope := ThreadFeed("root")
			if tt.initial != nil {
				s.SetPages(scope, tt.initial)
			}

			s.InsertAtHead(scope, item{ID: "new"})

			pages, ok := s.Pages(scope)
			if !ok {
				t.Fatal("expected scope present")
			}
			if got := ids(pages); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			if pages[0].NextCursor != tt.cursor {
				t.Fatalf("cursor = %q, want %q", pages[0].NextCursor, tt.cursor)
			}
		})
	}
}

func TestStore_ReplaceByIDKeepsPosition(t *testing.T) {
	s := NewStore[item]()
	scope := ChannelFeed("c1")
	s.SetPages(scope, []Page[item]{
		{Items: []item{{ID: "a"}, {ID: "tmp"}}},
		{Items: []item{{ID: "tmp"}}},
	})

	if !s.ReplaceByID(scope, "tmp", item{ID: "real"}) {
		t.Fatal("expected replace to match")
	}
	pages, _ := s.Pages(scope)
	want := [][]string{{"a", "real"}, {"tmp"}}
	if got := ids(pages); !reflect.DeepEqual(got, want) {
		t.Fatalf("only the first match should be replaced: got %v, want %v", got, want)
	}

	if s.ReplaceByID(scope, "missing", item{ID: "x"}) {
		t.Fatal("expected replace of missing id to report false")
	}
	if s.ReplaceByID(ChannelFeed("nope"), "a", item{ID: "x"}) {
		t.Fatal("expected replace on absent scope to report false")
	}
}

func TestStore_MapEntities(t *testing.T) {
	s := NewStore[item]()
	scope := ChannelFeed("c1")
	s.SetPages(scope, []Page[item]{{Items: []item{{ID: "a"}, {ID: "b", Count: 2}}}})
	rev := s.Revision(scope)

	n := s.MapEntities(scope, func(i item) bool { return i.ID == "b" }, func(i item) item {
		i.Count++
		return i
	})
	if n != 1 {
		t.Fatalf("touched = %d, want 1", n)
	}
	pages, _ := s.Pages(scope)
	if pages[0].Items[1].Count != 3 {
		t.Fatalf("count = %d, want 3", pages[0].Items[1].Count)
	}
	if s.Revision(scope) != rev+1 {
		t.Fatal("expected revision bump after a changing map")
	}

	n = s.MapEntities(scope, func(item) bool { return false }, func(i item) item { return i })
	if n != 0 || s.Revision(scope) != rev+1 {
		t.Fatal("a map touching nothing must not bump revision")
	}
}

func TestStore_RemoveByID(t *testing.T) {
	s := NewStore[item]()
	scope := ThreadFeed("r")
	s.SetPages(scope, []Page[item]{{Items: []item{{ID: "a"}}, NextCursor: "next"}})

	if !s.RemoveByID(scope, "a") {
		t.Fatal("expected remove to match")
	}
	pages, _ := s.Pages(scope)
	if len(pages) != 1 || len(pages[0].Items) != 0 || pages[0].NextCursor != "next" {
		t.Fatalf("page structure must survive removal, got %+v", pages)
	}
	if s.RemoveByID(scope, "a") {
		t.Fatal("second remove should report false")
	}
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := NewStore[item]()
	scope := ChannelFeed("c1")
	s.SetPages(scope, []Page[item]{{Items: []item{{ID: "a", Tags: []string{"x"}}}}})

	pages, _ := s.Pages(scope)
	pages[0].Items[0].ID = "mutated"
	pages[0].Items[0].Tags[0] = "mutated"

	again, _ := s.Pages(scope)
	if again[0].Items[0].ID != "a" || again[0].Items[0].Tags[0] != "x" {
		t.Fatalf("store state leaked through a read: %+v", again[0].Items[0])
	}
}

func TestStore_RevisionAndGeneration(t *testing.T) {
	s := NewStore[item]()
	scope := ChannelFeed("c1")

	s.SetPages(scope, []Page[item]{{Items: []item{{ID: "a"}}}})
	gen := s.Generation(scope)
	rev := s.Revision(scope)

	s.InsertAtHead(scope, item{ID: "b"})
	s.AppendPage(scope, Page[item]{Items: []item{{ID: "old"}}})
	if s.Generation(scope) != gen {
		t.Fatal("local writes must not bump generation")
	}
	if s.Revision(scope) != rev+2 {
		t.Fatalf("revision = %d, want %d", s.Revision(scope), rev+2)
	}

	s.Evict(scope)
	if s.Generation(scope) != gen+1 {
		t.Fatal("evict must bump generation")
	}
	if _, ok := s.Pages(scope); ok {
		t.Fatal("evicted scope should be absent")
	}
}

func TestStore_AtomicallyRestoreKeepsGeneration(t *testing.T) {
	s := NewStore[item]()
	a, b := ChannelFeed("c1"), ThreadFeed("r1")
	s.SetPages(a, []Page[item]{{Items: []item{{ID: "x"}}}})

	snap := s.Capture(a, b)
	s.InsertAtHead(a, item{ID: "y"})
	s.InsertAtHead(b, item{ID: "z"})

	s.Atomically(func(w *Writer[item]) {
		w.Restore(a, snap[a].Pages, snap[a].Present)
		w.Restore(b, snap[b].Pages, snap[b].Present)
	})

	pages, _ := s.Pages(a)
	if got := ids(pages); !reflect.DeepEqual(got, [][]string{{"x"}}) {
		t.Fatalf("restored ids = %v", got)
	}
	if _, ok := s.Pages(b); ok {
		t.Fatal("scope absent at capture should be absent after restore")
	}
	if s.Generation(a) != snap[a].Generation {
		t.Fatal("restore must not bump generation")
	}
}

func TestScope_String(t *testing.T) {
	if got := ThreadFeed("m1").String(); got != "thread-feed:m1" {
		t.Fatalf("String() = %q", got)
	}
}
