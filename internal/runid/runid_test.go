package runid

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithFrom(t *testing.T) {
	id := New()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("New() = %q is not a uuid: %v", id, err)
	}
	ctx := With(context.Background(), id)
	got, ok := From(ctx)
	if !ok || got != id {
		t.Fatalf("From = %q, %v", got, ok)
	}
	if _, ok := From(context.Background()); ok {
		t.Fatal("empty context reported a run id")
	}
	if _, ok := From(With(context.Background(), "")); ok {
		t.Fatal("empty id reported")
	}
}
