/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package revisionstate

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetAbsent(t *testing.T) {
	st := New()
	if snap, ok := st.Get("git repo#main"); ok || snap != nil {
		t.Fatalf("Get on empty store: got (%q, %v), want (nil, false)", snap, ok)
	}

	var nilStore *Store
	if _, ok := nilStore.Get("git repo#main"); ok {
		t.Fatal("Get on nil store reported a snapshot")
	}
	if nilStore.Len() != 0 {
		t.Fatalf("Len on nil store: got %d, want 0", nilStore.Len())
	}
}

func TestPutThenGet(t *testing.T) {
	st := New()
	st.Put("a", Snapshot("rev-1"))

	got, ok := st.Get("a")
	if !ok {
		t.Fatal("Get after Put: not found")
	}
	if !got.Equal(Snapshot("rev-1")) {
		t.Errorf("Get after Put: got %q, want %q", got, "rev-1")
	}
}

func TestPutOverwrites(t *testing.T) {
	st := New()
	st.Put("a", Snapshot("rev-1"))
	st.Put("a", Snapshot("rev-2"))

	if st.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", st.Len())
	}
	got, _ := st.Get("a")
	if !got.Equal(Snapshot("rev-2")) {
		t.Errorf("Get: got %q, want %q", got, "rev-2")
	}
}

func TestPutCopiesSnapshot(t *testing.T) {
	st := New()
	snap := Snapshot("abc")
	st.Put("a", snap)
	snap[0] = 'z'

	got, _ := st.Get("a")
	if string(got) != "abc" {
		t.Errorf("stored snapshot changed with caller's slice: got %q", got)
	}

	got[1] = 'z'
	again, _ := st.Get("a")
	if string(again) != "abc" {
		t.Errorf("stored snapshot changed through Get result: got %q", again)
	}
}

func TestZeroValuePut(t *testing.T) {
	var st Store
	st.Put("a", Snapshot("x"))
	if _, ok := st.Get("a"); !ok {
		t.Fatal("zero-value Store lost Put")
	}
}

func TestIDsSorted(t *testing.T) {
	st := New()
	st.Put("git c#main", Snapshot("3"))
	st.Put("git a#main", Snapshot("1"))
	st.Put("git b#main", Snapshot("2"))

	want := []SourceID{"git a#main", "git b#main", "git c#main"}
	if diff := cmp.Diff(want, st.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	st := New()
	st.Put("git https://example.com/repo#main", Snapshot("0123abcd"))
	st.Put("git https://example.com/other#dev", Snapshot{0x00, 0xff})

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	restored := New()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if diff := cmp.Diff(st.IDs(), restored.IDs()); diff != "" {
		t.Fatalf("IDs mismatch (-want +got):\n%s", diff)
	}
	for _, id := range st.IDs() {
		want, _ := st.Get(id)
		got, _ := restored.Get(id)
		if !want.Equal(got) {
			t.Errorf("snapshot for %s: got %v, want %v", id, got, want)
		}
	}
}

func TestMarshalEmpty(t *testing.T) {
	data, err := json.Marshal(&Store{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(data), `{"states":{}}`; got != want {
		t.Errorf("Marshal empty: got %s, want %s", got, want)
	}
}

func TestNilStorePut(t *testing.T) {
	var st *Store
	st.Put("a", Snapshot("rev-1"))
	if st.Len() != 0 {
		t.Fatalf("Len on nil store after Put: got %d, want 0", st.Len())
	}
}

func TestClone(t *testing.T) {
	st := New()
	st.Put("a", Snapshot("rev-1"))

	c := st.Clone()
	c.Put("a", Snapshot("rev-2"))
	c.Put("b", Snapshot("rev-3"))

	if got, _ := st.Get("a"); !got.Equal(Snapshot("rev-1")) {
		t.Errorf("original after writing the clone: got %q, want %q", got, "rev-1")
	}
	if diff := cmp.Diff([]SourceID{"a"}, st.IDs()); diff != "" {
		t.Errorf("original IDs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]SourceID{"a", "b"}, c.IDs()); diff != "" {
		t.Errorf("clone IDs (-want +got):\n%s", diff)
	}

	var nilStore *Store
	if nilStore.Clone() != nil {
		t.Error("Clone of a nil store is not nil")
	}
}
