package tinygc

import (
	"errors"
	"testing"
	"unsafe"
)

type tracked struct {
	id int
}

var finalizedIDs []int

func (tr *tracked) Finalize() {
	finalizedIDs = append(finalizedIDs, tr.id)
}

func TestFinalizerRunsOnCollection(t *testing.T) {
	c := freshCollector(t)
	finalizedIDs = nil

	p, err := TryNew(func(tr *tracked) error {
		tr.id = 7
		return nil
	})
	if err != nil {
		t.Fatalf("TryNew: %v", err)
	}
	p.Release()
	c.Collect()

	if len(finalizedIDs) != 1 || finalizedIDs[0] != 7 {
		t.Errorf("expected finalizer run for id 7, got %v", finalizedIDs)
	}
}

func TestArrayConstructorFailureUnwinds(t *testing.T) {
	c := freshCollector(t)
	finalizedIDs = nil
	boom := errors.New("boom")

	_, err := TryNewArray(5, func(i int, tr *tracked) error {
		if i == 3 {
			return boom
		}
		tr.id = i
		return nil
	})
	if err == nil {
		t.Fatal("expected constructor error")
	}
	var cerr *ConstructError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstructError, got %T", err)
	}
	if cerr.Index != 3 || !errors.Is(err, boom) {
		t.Errorf("wrong error detail: %+v", cerr)
	}

	// Initialized prefix torn down in reverse order.
	want := []int{2, 1, 0}
	if len(finalizedIDs) != len(want) {
		t.Fatalf("finalized %v, want %v", finalizedIDs, want)
	}
	for i := range want {
		if finalizedIDs[i] != want[i] {
			t.Fatalf("finalized %v, want %v", finalizedIDs, want)
		}
	}
	if got := c.Stats().YoungObjects; got != 0 {
		t.Errorf("failed allocation left %d objects behind", got)
	}
}

func TestArrayElements(t *testing.T) {
	freshCollector(t)

	p, err := TryNewArray(4, func(i int, v *int) error {
		*v = i * 10
		return nil
	})
	if err != nil {
		t.Fatalf("TryNewArray: %v", err)
	}
	defer p.Release()

	if p.Len() != 4 {
		t.Fatalf("Len = %d, want 4", p.Len())
	}
	for i := 0; i < 4; i++ {
		if got := *p.At(i); got != i*10 {
			t.Errorf("At(%d) = %d, want %d", i, got, i*10)
		}
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic for out of range index")
			}
		}()
		p.At(4)
	}()
}

func TestFromRecoversHandle(t *testing.T) {
	freshCollector(t)

	p := New[cnode]()
	defer p.Release()

	q, err := From(p.Get())
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if !q.Equal(p) {
		t.Error("From returned a handle to a different object")
	}
	q.Release()
}

func TestFromInteriorPointer(t *testing.T) {
	freshCollector(t)

	p := NewArray[int](8)
	defer p.Release()

	q, err := From(p.At(5))
	if err != nil {
		t.Fatalf("From on interior pointer: %v", err)
	}
	if !q.Equal(p) {
		t.Error("interior pointer resolved to a different object")
	}
	q.Release()
}

func TestFromUnmanagedPointer(t *testing.T) {
	freshCollector(t)

	var x int
	if _, err := From(&x); !errors.Is(err, ErrMissingHeader) {
		t.Errorf("expected ErrMissingHeader, got %v", err)
	}
}

func TestDeleteNullsOtherHandles(t *testing.T) {
	c := freshCollector(t)
	finalizedIDs = nil

	p, _ := TryNew(func(tr *tracked) error { tr.id = 1; return nil })
	other := p

	Delete(&p)
	if !p.IsNil() {
		t.Error("deleted handle is not nil")
	}
	if !other.IsNil() {
		t.Error("other handle still sees the deleted object")
	}
	if len(finalizedIDs) != 1 {
		t.Errorf("expected one finalizer run, got %v", finalizedIDs)
	}

	// Double delete and collection over the tombstone are harmless.
	Delete(&other)
	c.Collect()
	if len(finalizedIDs) != 1 {
		t.Errorf("finalizer ran again: %v", finalizedIDs)
	}
}

func TestCustomAllocator(t *testing.T) {
	c := freshCollector(t)

	bufs := map[unsafe.Pointer][]byte{}
	allocs, frees := 0, 0
	c.SetAllocator(func(size uintptr) (unsafe.Pointer, error) {
		allocs++
		b := make([]byte, size)
		p := unsafe.Pointer(&b[0])
		bufs[p] = b
		return p, nil
	}, func(p unsafe.Pointer, size uintptr) {
		frees++
		delete(bufs, p)
	})

	p := New[cnode]()
	q := New[cnode]()
	p.Get().next.Assign(q)
	if allocs != 2 {
		t.Fatalf("allocator called %d times, want 2", allocs)
	}

	q.Release()
	p.Release()
	c.Collect()
	if frees != 2 {
		t.Errorf("deallocator called %d times, want 2", frees)
	}
	if len(bufs) != 0 {
		t.Errorf("%d buffers leaked", len(bufs))
	}
}

func TestFailingAllocator(t *testing.T) {
	c := freshCollector(t)
	c.SetAllocator(func(size uintptr) (unsafe.Pointer, error) {
		return nil, ErrAllocFailure
	}, nil)

	if _, err := TryNew[cnode](nil); !errors.Is(err, ErrAllocFailure) {
		t.Errorf("expected ErrAllocFailure, got %v", err)
	}
	if got := c.Stats().YoungObjects; got != 0 {
		t.Errorf("failed allocation left %d objects", got)
	}
}

type spawner struct{}

var spawned Ptr[cnode]

func (s *spawner) Finalize() {
	spawned = New[cnode]()
}

func TestAllocationInsideFinalizer(t *testing.T) {
	c := freshCollector(t)
	spawned = Ptr[cnode]{}

	p := New[spawner]()
	p.Release()
	c.Collect()

	if spawned.IsNil() {
		t.Fatal("object allocated in a finalizer is dead")
	}
	c.Collect()
	if spawned.IsNil() {
		t.Fatal("finalizer allocation did not survive the next cycle")
	}
	spawned.Release()
}

func TestNewValue(t *testing.T) {
	freshCollector(t)

	p := NewValue(42)
	defer p.Release()
	if got := *p.Get(); got != 42 {
		t.Errorf("NewValue stored %d, want 42", got)
	}
}

func TestZeroInitialized(t *testing.T) {
	freshCollector(t)

	p := New[cnode]()
	defer p.Release()
	if !p.Get().next.IsNil() {
		t.Error("fresh object has a non nil handle field")
	}
}
