package kernel

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// tasLock is a test-and-set spinlock built on an atomic bool, used to
// guard one routing-table bucket (§4.2, §5). Held only for the duration
// of a single insert/lookup/remove — never nested with another lock.
type tasLock struct {
	held atomix.Bool
}

func (l *tasLock) Lock() {
	sw := spin.Wait{}
	for !l.held.CompareAndSwapAcqRel(false, true) {
		sw.Once()
	}
}

func (l *tasLock) Unlock() {
	l.held.StoreRelease(false)
}
