//go:build !tinygc_threadsafe

package tinygc

// pmutex is a mutex that becomes a real sync.Mutex only when the
// tinygc_threadsafe build tag is set. Single-goroutine programs, the common
// case for a collector whose handles are not safe to share anyway, pay
// nothing for it.
type pmutex struct{}

func (m *pmutex) Lock()   {}
func (m *pmutex) Unlock() {}
