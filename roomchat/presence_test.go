package roomchat

import (
	"reflect"
	"testing"
)

func TestPresenceSetAddRemove(t *testing.T) {
	p := NewPresenceSet()
	p.Add("u1")
	p.Add("u1")
	p.Add("u2")

	if p.Len() != 2 {
		t.Fatalf("len = %d, want 2", p.Len())
	}
	p.Remove("u1")
	p.Remove("u1") // absent, no-op
	if p.Has("u1") || !p.Has("u2") {
		t.Fatalf("unexpected membership: %v", p.IDs())
	}
}

func TestPresenceSetReplace(t *testing.T) {
	p := NewPresenceSet()
	p.Add("stale")
	p.Replace([]string{"u3", "u1", "u2"})

	if got := p.IDs(); !reflect.DeepEqual(got, []string{"u1", "u2", "u3"}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestPresenceSetIgnoresEmptyID(t *testing.T) {
	p := NewPresenceSet()
	p.Add("")
	if p.Len() != 0 {
		t.Fatalf("empty id was added")
	}
}
