package terms

import (
	"fmt"
	"sync"

	"github.com/lazarr/lazarr/types/xsync"
)

// Symbol is an interned identifier: operator names and grammar heads are
// symbols. Two symbols built from the same name are equal as Go values, so a
// Symbol compares in O(1) and can be used as a hash key -- the properties
// required of a term atom.
type Symbol int32

var (
	symbolsByName xsync.SyncMap[string, Symbol]

	muSymbolNames sync.Mutex
	symbolNames   []string
)

// S interns name and returns its Symbol. Repeated calls with the same name
// return the same Symbol.
func S(name string) Symbol {
	if sym, ok := symbolsByName.Load(name); ok {
		return sym
	}
	muSymbolNames.Lock()
	defer muSymbolNames.Unlock()
	// Re-check under the lock: another goroutine may have interned it.
	if sym, ok := symbolsByName.Load(name); ok {
		return sym
	}
	sym := Symbol(len(symbolNames))
	symbolNames = append(symbolNames, name)
	symbolsByName.Store(name, sym)
	return sym
}

// String returns the name the symbol was interned from.
func (s Symbol) String() string {
	muSymbolNames.Lock()
	defer muSymbolNames.Unlock()
	if int(s) < 0 || int(s) >= len(symbolNames) {
		return fmt.Sprintf("symbol(%d)", int32(s))
	}
	return symbolNames[s]
}
