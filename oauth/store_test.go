package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/chronicle-bot/db"
	"github.com/onnwee/chronicle-bot/testutil"
)

func TestRefreshNowPersistsToPostgres(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	if _, err := pool.Exec(context.Background(), `DELETE FROM oauth_tokens WHERE provider = $1`, ProviderTwitch); err != nil {
		t.Fatalf("clean oauth_tokens: %v", err)
	}
	store := db.NewStore(pool)

	exp := time.Now().Add(4 * time.Hour).UTC().Truncate(time.Second)
	fn := func(_ context.Context, rt string) (string, string, time.Time, string, error) {
		return "fresh-access", "", exp, "chat:read chat:edit", nil
	}
	if _, err := RefreshNow(context.Background(), store, ProviderTwitch, "seed", fn, nil); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}

	access, refresh, expiry, scope, err := store.GetOAuthToken(context.Background(), ProviderTwitch)
	if err != nil {
		t.Fatal(err)
	}
	if access != "fresh-access" || refresh != "seed" || !expiry.Equal(exp) || scope != "chat:read chat:edit" {
		t.Errorf("stored %q %q %v %q", access, refresh, expiry, scope)
	}
}
