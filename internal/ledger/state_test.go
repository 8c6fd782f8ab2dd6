package ledger

import (
	"errors"
	"testing"
)

func TestMemStoreSaveLoadRemove(t *testing.T) {
	s := NewMemStore()

	if _, found, err := s.Load("store", "missing"); err != nil || found {
		t.Fatalf("expected absent key, found=%v err=%v", found, err)
	}

	if err := s.Save("store", "k", []byte("v1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v, found, err := s.Load("store", "k")
	if err != nil || !found || string(v) != "v1" {
		t.Fatalf("Load: got %q found=%v err=%v", v, found, err)
	}

	// Namespaces are isolated.
	if _, found, _ := s.Load("other", "k"); found {
		t.Fatal("key leaked across namespaces")
	}

	if err := s.Remove("store", "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("store", "k"); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if _, found, _ := s.Load("store", "k"); found {
		t.Fatal("key still present after Remove")
	}
}

func TestMemStoreCopiesValues(t *testing.T) {
	s := NewMemStore()
	buf := []byte("abc")
	s.Save("ns", "k", buf)
	buf[0] = 'z'

	v, _, _ := s.Load("ns", "k")
	if string(v) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", v)
	}
}

func TestCacheWriteAndDiscard(t *testing.T) {
	parent := NewMemStore()
	parent.Save("store", "keep", []byte("old"))
	parent.Save("store", "drop", []byte("gone"))

	c := NewCache(parent)
	c.Save("store", "keep", []byte("new"))
	c.Remove("store", "drop")
	c.Save("store", "fresh", []byte("x"))

	// Reads through the cache see buffered state.
	if v, _, _ := c.Load("store", "keep"); string(v) != "new" {
		t.Fatalf("cache read: got %q", v)
	}
	if _, found, _ := c.Load("store", "drop"); found {
		t.Fatal("cache read of removed key should be absent")
	}
	// Parent is untouched until Write.
	if v, _, _ := parent.Load("store", "keep"); string(v) != "old" {
		t.Fatalf("parent mutated before Write: %q", v)
	}

	if err := c.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v, _, _ := parent.Load("store", "keep"); string(v) != "new" {
		t.Fatalf("parent after Write: %q", v)
	}
	if _, found, _ := parent.Load("store", "drop"); found {
		t.Fatal("removed key survived Write")
	}
	if got := parent.Keys("store"); len(got) != 2 {
		t.Fatalf("expected 2 keys, got %v", got)
	}

	c2 := NewCache(parent)
	c2.Save("store", "keep", []byte("discarded"))
	c2.Discard()
	if err := c2.Write(); err != nil {
		t.Fatalf("Write after Discard: %v", err)
	}
	if v, _, _ := parent.Load("store", "keep"); string(v) != "new" {
		t.Fatalf("discarded write reached parent: %q", v)
	}
}

type plainStore struct {
	saves, removes int
	inner          *MemStore
}

func (p *plainStore) Save(ns, k string, v []byte) error {
	p.saves++
	return p.inner.Save(ns, k, v)
}
func (p *plainStore) Load(ns, k string) ([]byte, bool, error) { return p.inner.Load(ns, k) }
func (p *plainStore) Remove(ns, k string) error {
	p.removes++
	return p.inner.Remove(ns, k)
}

func TestCacheWriteWithoutBatcher(t *testing.T) {
	p := &plainStore{inner: NewMemStore()}
	c := NewCache(p)
	c.Save("a", "1", []byte("x"))
	c.Save("a", "2", []byte("y"))
	c.Remove("a", "3")
	if err := c.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if p.saves != 2 || p.removes != 1 {
		t.Fatalf("expected 2 saves and 1 remove, got %d/%d", p.saves, p.removes)
	}
}

func TestTypedItemAndMap(t *testing.T) {
	s := NewMemStore()
	owner := NewItem[string]("owner")

	if _, err := owner.Load(s); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := owner.Save(s, "alice"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := owner.Load(s)
	if err != nil || got != "alice" {
		t.Fatalf("Load: %q %v", got, err)
	}

	m := NewMap[string]("store")
	v, err := m.Update(s, "k", func(_ string, found bool) (string, error) {
		if found {
			t.Fatal("unexpected existing value")
		}
		return "first", nil
	})
	if err != nil || v != "first" {
		t.Fatalf("Update: %q %v", v, err)
	}
	if ok, _ := m.Has(s, "k"); !ok {
		t.Fatal("Has after Update")
	}

	boom := errors.New("boom")
	if _, err := m.Update(s, "k", func(string, bool) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected update error, got %v", err)
	}
	if v, _, _ := m.MayLoad(s, "k"); v != "first" {
		t.Fatalf("failed update mutated value: %q", v)
	}
}

func TestNestedCacheFlushesIntoParentCache(t *testing.T) {
	base := NewMemStore()
	base.Save("store", "gone", []byte("x"))

	block := NewCache(base)
	call := NewCache(block)
	call.Save("store", "k", []byte("v"))
	call.Remove("store", "gone")
	if err := call.Write(); err != nil {
		t.Fatalf("call Write: %v", err)
	}

	if _, found, _ := base.Load("store", "k"); found {
		t.Fatal("nested write reached the base store before the outer Write")
	}
	if v, _, _ := block.Load("store", "k"); string(v) != "v" {
		t.Fatalf("outer cache read %q", v)
	}
	if _, found, _ := block.Load("store", "gone"); found {
		t.Fatal("nested delete not visible in outer cache")
	}

	if err := block.Write(); err != nil {
		t.Fatalf("block Write: %v", err)
	}
	if got := base.Keys("store"); len(got) != 1 || got[0] != "k" {
		t.Fatalf("base keys %v", got)
	}
}

func TestMemStoreEachIsOrdered(t *testing.T) {
	s := NewMemStore()
	s.Save("store", "b", []byte("2"))
	s.Save("balances", "x", []byte("3"))
	s.Save("store", "a", []byte("1"))

	var got []string
	err := s.Each(func(namespace, key string, value []byte) error {
		got = append(got, namespace+"/"+key+"="+string(value))
		return nil
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	want := []string{"balances/x=3", "store/a=1", "store/b=2"}
	if len(got) != len(want) {
		t.Fatalf("Each = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Each = %v, want %v", got, want)
		}
	}

	stop := errors.New("stop")
	if err := s.Each(func(string, string, []byte) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
