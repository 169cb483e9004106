package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ApplyAndNegativeTotals(t *testing.T) {
	l := newLedger()

	total := l.apply(ScoreDelta{PlayerID: "p1", Value: 400, Reason: reasonCorrect})
	assert.Equal(t, 400, total)

	// No delta is refused for insufficient balance.
	total = l.apply(ScoreDelta{PlayerID: "p1", Value: -1000, Reason: reasonIncorrect})
	assert.Equal(t, -600, total)
	assert.Equal(t, -600, l.total("p1"))
}

func TestLedger_AuditTrailNeverShrinks(t *testing.T) {
	l := newLedger()

	l.apply(ScoreDelta{PlayerID: "p1", Value: 200, Reason: reasonCorrect})
	// A correction is a new opposite-signed delta, not a retraction.
	l.apply(ScoreDelta{PlayerID: "p1", Value: -200, Reason: reasonIncorrect})

	history := l.audit()
	require.Len(t, history, 2)
	assert.Equal(t, 200, history[0].Value)
	assert.Equal(t, -200, history[1].Value)
	assert.Equal(t, 0, l.total("p1"))
}

func TestLedger_BatchIsAtomicUnderConcurrentReads(t *testing.T) {
	l := newLedger()

	batch := []ScoreDelta{
		{PlayerID: "a", Value: 100, Reason: reasonWager},
		{PlayerID: "b", Value: -200, Reason: reasonWager},
		{PlayerID: "c", Value: 300, Reason: reasonWager},
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// Readers must only ever observe none or all of the batch.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				snap := l.snapshot()
				applied := 0
				for _, delta := range batch {
					if snap[delta.PlayerID] != 0 {
						applied++
					}
				}
				assert.Contains(t, []int{0, len(batch)}, applied,
					"observed a partially applied batch: %v", snap)
			}
		}()
	}

	l.applyBatch(batch)
	close(stop)
	wg.Wait()

	assert.Equal(t, 100, l.total("a"))
	assert.Equal(t, -200, l.total("b"))
	assert.Equal(t, 300, l.total("c"))
}
