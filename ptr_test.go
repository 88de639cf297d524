package tinygc

import (
	"errors"
	"testing"
)

func TestNilHandle(t *testing.T) {
	freshCollector(t)

	var p Ptr[int]
	if !p.IsNil() {
		t.Error("zero handle is not nil")
	}
	if p.Len() != 0 {
		t.Error("nil handle has nonzero length")
	}

	defer func() {
		if r := recover(); !errors.Is(r.(error), ErrNullDeref) {
			t.Errorf("expected ErrNullDeref panic, got %v", r)
		}
	}()
	p.Get()
}

func TestAssignAndEqual(t *testing.T) {
	freshCollector(t)

	a := New[cnode]()
	defer a.Release()
	var b Ptr[cnode]
	b.Assign(a)
	defer b.Release()

	if !a.Equal(b) {
		t.Error("handles to the same object are not equal")
	}
	if a.Get() != b.Get() {
		t.Error("handles dereference to different addresses")
	}

	other := New[cnode]()
	defer other.Release()
	if a.Equal(other) {
		t.Error("handles to different objects are equal")
	}
}

func TestAssignSelfIsStable(t *testing.T) {
	c := freshCollector(t)

	p := New[cnode]()
	p.Assign(p)
	p.Assign(p)
	w := p
	p.Release()
	c.Collect()
	if !w.IsNil() {
		t.Error("self assignment inflated the root count")
	}
}

func TestMove(t *testing.T) {
	c := freshCollector(t)

	a := New[cnode]()
	var b Ptr[cnode]
	b.Move(&a)

	if !a.IsNil() {
		t.Error("source of a move is not nil")
	}
	if b.IsNil() {
		t.Fatal("destination of a move is nil")
	}

	w := b
	b.Release()
	c.Collect()
	if !w.IsNil() {
		t.Error("move left a stray root behind")
	}
}

func TestReassignReleasesOldTarget(t *testing.T) {
	c := freshCollector(t)

	a := New[cnode]()
	b := New[cnode]()
	w := a
	a.Assign(b) // the original target of a loses its only root
	c.Collect()

	if !w.IsNil() {
		t.Error("previous target survived reassignment")
	}
	if a.IsNil() || b.IsNil() {
		t.Error("reassigned handles are dead")
	}
	a.Release()
	b.Release()
}

func TestCastToRoundTrip(t *testing.T) {
	freshCollector(t)

	p := New[cnode]()
	defer p.Release()

	r := p.Ref()
	if r.IsNil() {
		t.Fatal("erased handle is nil")
	}
	q := CastTo[cnode](r)
	if q.IsNil() || !q.Equal(p) {
		t.Error("cast back to the original type failed")
	}
	if bad := CastTo[int](r); !bad.IsNil() {
		t.Error("cast to the wrong type succeeded")
	}
	if bad := CastTo[cnode](Ref{}); !bad.IsNil() {
		t.Error("cast of a nil handle succeeded")
	}
}

func TestErasedAssign(t *testing.T) {
	c := freshCollector(t)

	p := New[cnode]()
	var r Ref
	r.Assign(p.Ref())
	p.Release()
	c.Collect()

	if r.IsNil() {
		t.Fatal("erased root did not keep the object alive")
	}
	w := r
	r.Release()
	c.Collect()
	if !w.IsNil() {
		t.Error("object survived after the erased root released it")
	}
}

type inner struct {
	link Ptr[cnode]
}

type outer struct {
	pre   int
	in    inner
	post  [2]Ptr[cnode]
	other string
}

func TestNestedHandleDiscovery(t *testing.T) {
	c := freshCollector(t)

	o := New[outer]()
	a := New[cnode]()
	b := New[cnode]()
	d := New[cnode]()
	o.Get().in.link.Assign(a)
	o.Get().post[0].Assign(b)
	o.Get().post[1].Assign(d)

	wa, wb, wd := a, b, d
	a.Release()
	b.Release()
	d.Release()
	c.Collect()

	if wa.IsNil() || wb.IsNil() || wd.IsNil() {
		t.Fatal("handles in nested fields were not traced")
	}

	o.Release()
	c.Collect()
	if !wa.IsNil() || !wb.IsNil() || !wd.IsNil() {
		t.Error("children survived their only owner")
	}
}

func TestHandleAssignedDuringConstruction(t *testing.T) {
	c := freshCollector(t)

	target := New[cnode]()
	p, err := TryNew(func(n *cnode) error {
		n.next.Assign(target)
		return nil
	})
	if err != nil {
		t.Fatalf("TryNew: %v", err)
	}

	w := target
	target.Release()
	c.Collect()
	if w.IsNil() {
		t.Fatal("edge created inside a constructor was lost")
	}

	p.Release()
	c.Collect()
	if !w.IsNil() {
		t.Error("child outlived its constructing owner")
	}
}
