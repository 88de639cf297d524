package tinygc

// Func is a managed callable: a Go func value paired with a traced
// environment handle. Closures that capture managed objects should capture
// them through the environment so the collector sees the edge.
type Func[F any] struct {
	inner Ptr[funcData[F]]
}

type funcData[F any] struct {
	fn  F
	env Ref
}

// NewFunc wraps fn in a managed object with an empty environment. The
// returned wrapper is rooted; call Release when done with it.
func NewFunc[F any](fn F) Func[F] {
	p, err := newObject[funcData[F]](1, func(_ int, d *funcData[F]) error {
		d.fn = fn
		return nil
	}, nil)
	if err != nil {
		panic(err)
	}
	return Func[F]{inner: p}
}

// BindFunc wraps fn together with the object behind env. Recover the typed
// environment inside fn with CastTo on Env.
func BindFunc[F any, E any](fn F, env Ptr[E]) Func[F] {
	f := NewFunc(fn)
	f.inner.Get().env.Assign(env.Ref())
	return f
}

// IsNil reports whether f holds no function.
func (f Func[F]) IsNil() bool { return f.inner.IsNil() }

// Equal reports whether both wrappers are the same managed object.
func (f Func[F]) Equal(o Func[F]) bool { return f.inner.Equal(o.inner) }

// Fn returns the wrapped func value. It panics with ErrNullDeref on a nil
// wrapper.
func (f Func[F]) Fn() F {
	return f.inner.Get().fn
}

// Env returns a borrowed handle to the bound environment, nil when unbound.
func (f Func[F]) Env() Ref {
	return f.inner.Get().env
}

// Assign repoints f at the function of o.
func (f *Func[F]) Assign(o Func[F]) {
	f.inner.Assign(o.inner)
}

// Release drops the rooted handle to the wrapper.
func (f *Func[F]) Release() {
	f.inner.Release()
}
