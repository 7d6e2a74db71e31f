package actorctx

import (
	"context"
	"testing"
)

func TestUserIDRoundTrip(t *testing.T) {
	if _, ok := UserIDFrom(context.Background()); ok {
		t.Fatalf("empty context should carry no user")
	}

	ctx := WithUserID(context.Background(), "01HZX")
	id, ok := UserIDFrom(ctx)
	if !ok || id != "01HZX" {
		t.Fatalf("got %q %v", id, ok)
	}

	if _, ok := UserIDFrom(WithUserID(context.Background(), "")); ok {
		t.Fatalf("blank id should not count")
	}
}
