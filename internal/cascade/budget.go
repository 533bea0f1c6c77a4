package cascade

import (
	"fmt"
	"math/bits"
)

// callBudget bounds the number of oracle calls a session may issue.
//
// A correct session stays well under maxPasses * N * (ceil(log2 N) + 1):
// at most N top-block queries per pass, and every correction spends at
// most ceil(log2 N) bisection queries against a total correction count
// bounded by the initial error count. Exceeding the budget therefore
// means the cascade loop is not reaching its fixed point. That is a
// defect, reported as a desync, never a protocol outcome.
type callBudget struct {
	max  int
	used int
}

func newCallBudget(maxPasses, keySize int) *callBudget {
	return &callBudget{
		max: maxPasses * keySize * (ceilLog2(keySize) + 1),
	}
}

// spend consumes one oracle call from the budget.
func (b *callBudget) spend() error {
	b.used++
	if b.used > b.max {
		return fmt.Errorf("oracle call budget exceeded: %d calls > %d limit", b.used, b.max)
	}
	return nil
}

// ceilLog2 returns ceil(log2(n)) for n >= 1.
func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
