package rendezvous

import (
	"testing"
	"time"
)

func TestPendingInsertAndTake(t *testing.T) {
	table := newPendingTable()
	conn, _ := pipeConn()
	table.insert("1", &pendingConnection{publicConn: conn, createdAt: time.Now()})

	p, ok := table.take("1")
	if !ok || p.publicConn != conn {
		t.Fatal("expected to retrieve inserted entry")
	}
	if _, ok := table.take("1"); ok {
		t.Fatal("expected entry to be removed after take")
	}
}

func TestSweepExpiredRemovesOnlyOldEntries(t *testing.T) {
	table := newPendingTable()
	oldConn, _ := pipeConn()
	freshConn, _ := pipeConn()

	table.insert("old", &pendingConnection{publicConn: oldConn, createdAt: time.Now().Add(-pendingTTL - time.Second)})
	table.insert("fresh", &pendingConnection{publicConn: freshConn, createdAt: time.Now()})

	expired := table.sweepExpired(time.Now())
	if len(expired) != 1 || expired[0].publicConn != oldConn {
		t.Fatalf("expected only the old entry to expire, got %d", len(expired))
	}
	if _, ok := table.take("fresh"); !ok {
		t.Fatal("expected fresh entry to remain")
	}
	if _, ok := table.take("old"); ok {
		t.Fatal("expected old entry to already be removed")
	}
}
