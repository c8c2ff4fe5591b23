package forestry

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SundaeSwap-finance/merkle-patricia-forestry/node"
	"github.com/SundaeSwap-finance/merkle-patricia-forestry/store/memdb"
)

var fruitBasket = map[string]string{
	"apple":     "🍎",
	"blueberry": "🫐",
	"cherries":  "🍒",
	"grapes":    "🍇",
	"tangerine": "🍊",
	"tomato":    "🍅",
}

const wantedScenario1Root = "0xee54d685370064b61cd8921f8476e54819990a67f6ebca402d1280ba1b03c75f"

func TestEndToEndScenarios(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	f := New(db)
	for k, v := range fruitBasket {
		if err := f.Insert(ctx, []byte(k), []byte(v)); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}

	// Scenario 1.
	if got, want := f.Root(), common.HexToHash(wantedScenario1Root); got != want {
		t.Fatalf("scenario 1: root = %s, want %s", got, want)
	}

	// Scenario 2.
	got, ok, err := f.Get(ctx, []byte("cherries"))
	if err != nil || !ok || !bytes.Equal(got, []byte("🍒")) {
		t.Fatalf("scenario 2: Get(cherries) = (%q, %v, %v)", got, ok, err)
	}
	if _, ok, err := f.Get(ctx, []byte("banana")); err != nil || ok {
		t.Fatalf("scenario 2: Get(banana) ok=%v err=%v, want absent", ok, err)
	}

	// Scenario 3.
	originalRoot := f.Root()
	p, err := f.Prove(ctx, []byte("tangerine"))
	if err != nil {
		t.Fatalf("scenario 3: Prove(tangerine): %v", err)
	}
	if got := p.Verify([]byte("tangerine"), []byte("🍊"), true); got != originalRoot {
		t.Fatalf("scenario 3: inclusion verify = %s, want %s", got, originalRoot)
	}
	if err := f.Insert(ctx, []byte("banana"), []byte("🍌")); err != nil {
		t.Fatalf("scenario 3: Insert(banana): %v", err)
	}
	newRoot := f.Root()
	pBanana, err := f.Prove(ctx, []byte("banana"))
	if err != nil {
		t.Fatalf("scenario 3: Prove(banana): %v", err)
	}
	if got := pBanana.Verify([]byte("banana"), []byte("🍌"), false); got != originalRoot {
		t.Fatalf("scenario 3: exclusion verify = %s, want original root %s", got, originalRoot)
	}
	if got := pBanana.Verify([]byte("banana"), []byte("🍌"), true); got != newRoot {
		t.Fatalf("scenario 3: inclusion verify = %s, want new root %s", got, newRoot)
	}
	if err := f.Delete(ctx, []byte("banana")); err != nil {
		t.Fatalf("cleanup: Delete(banana): %v", err)
	}

	// Scenario 5.
	if err := f.Save(ctx); err != nil {
		t.Fatalf("scenario 5: Save: %v", err)
	}
	loaded, err := Load(ctx, db)
	if err != nil {
		t.Fatalf("scenario 5: Load: %v", err)
	}
	grapes, ok, err := loaded.Get(ctx, []byte("grapes"))
	if err != nil || !ok || !bytes.Equal(grapes, []byte("🍇")) {
		t.Fatalf("scenario 5: Get(grapes) after load = (%q, %v, %v)", grapes, ok, err)
	}
}

func TestScenario4EmptyAfterInsertDelete(t *testing.T) {
	ctx := context.Background()
	f := New(memdb.New())
	if err := f.Insert(ctx, []byte("apple"), []byte("🍎")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := f.Delete(ctx, []byte("apple")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.Root(); got != node.EmptyHash {
		t.Fatalf("root after insert+delete = %s, want empty hash", got)
	}
}

func TestScenario6FetchChildrenThenSaveStable(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	f := New(db)
	for k, v := range fruitBasket {
		if err := f.Insert(ctx, []byte(k), []byte(v)); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}
	before := f.Root()

	if err := f.FetchChildren(ctx, len(fruitBasket)*16); err != nil {
		t.Fatalf("FetchChildren: %v", err)
	}
	if err := f.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := f.Root(); got != before {
		t.Fatalf("root changed across FetchChildren+Save: %s -> %s", before, got)
	}
}
