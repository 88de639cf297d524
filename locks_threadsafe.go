//go:build tinygc_threadsafe

package tinygc

import "sync"

type pmutex = sync.Mutex
