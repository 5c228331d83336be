package db

import (
	"context"
	"errors"
	"testing"
)

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx on a bare context")
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey{}, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx when the stored value is not a pgx.Tx")
	}
}

func TestNopTransactor_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	called := false
	err := NopTransactor{}.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		return want
	})
	if !called {
		t.Fatal("expected fn to be called")
	}
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}
