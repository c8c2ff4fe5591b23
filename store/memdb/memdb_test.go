package memdb

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SundaeSwap-finance/merkle-patricia-forestry/store"
)

func TestGetPutDeleteExists(t *testing.T) {
	ctx := context.Background()
	db := New()
	h := common.HexToHash("0x01")

	if _, ok, err := db.Get(ctx, h); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}
	if err := db.Put(ctx, h, []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := db.Get(ctx, h)
	if err != nil || !ok || !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("Get after Put = (%q, %v, %v)", got, ok, err)
	}
	if exists, err := db.Exists(ctx, h); err != nil || !exists {
		t.Fatalf("Exists after Put = (%v, %v)", exists, err)
	}
	if err := db.Delete(ctx, h); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if exists, err := db.Exists(ctx, h); err != nil || exists {
		t.Fatalf("Exists after Delete = (%v, %v)", exists, err)
	}
}

func TestGetReturnsDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	db := New()
	h := common.HexToHash("0x02")
	original := []byte{1, 2, 3}
	if err := db.Put(ctx, h, original); err != nil {
		t.Fatalf("Put: %v", err)
	}
	original[0] = 0xff

	got, _, err := db.Get(ctx, h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got[0] == 0xff {
		t.Fatal("mutating caller's slice affected the store's copy")
	}
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	db := New()
	h1, h2 := common.HexToHash("0x01"), common.HexToHash("0x02")
	if err := db.Put(ctx, h1, []byte("stale")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := db.Batch(ctx, []store.Op{
		{Key: h1, Value: nil},
		{Key: h2, Value: []byte("new")},
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if exists, _ := db.Exists(ctx, h1); exists {
		t.Fatal("h1 should have been deleted by the batch")
	}
	got, ok, _ := db.Get(ctx, h2)
	if !ok || !bytes.Equal(got, []byte("new")) {
		t.Fatalf("h2 after batch = (%q, %v)", got, ok)
	}
}

func TestLen(t *testing.T) {
	ctx := context.Background()
	db := New()
	for i := 0; i < 3; i++ {
		if err := db.Put(ctx, common.BytesToHash([]byte{byte(i)}), []byte("v")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if got := db.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
}
