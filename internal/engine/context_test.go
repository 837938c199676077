package engine

import (
	"errors"
	"testing"

	"github.com/corvidlabs/voxcore/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Contexts: []config.ContextConfig{
			{Name: "sales", DIDs: []string{"+18005551000"}},
			{Name: "support", DIDs: []string{"+18005552000", "+18005552001"}},
		},
		Campaigns: []config.Campaign{
			{Name: "spring-promo", ContextName: "sales"},
		},
	}
}

func TestResolveInboundContext_MatchesByDID(t *testing.T) {
	ctx, err := ResolveInboundContext(testConfig(), "+18005552001")
	if err != nil {
		t.Fatalf("ResolveInboundContext: %v", err)
	}
	if ctx.Name != "support" {
		t.Fatalf("context = %q, want support", ctx.Name)
	}
}

func TestResolveInboundContext_UnknownDIDReturnsErrContextNotFound(t *testing.T) {
	_, err := ResolveInboundContext(testConfig(), "+19995550000")
	if !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("expected ErrContextNotFound, got %v", err)
	}
}

func TestResolveContextByName_MatchesName(t *testing.T) {
	ctx, err := ResolveContextByName(testConfig(), "sales")
	if err != nil {
		t.Fatalf("ResolveContextByName: %v", err)
	}
	if len(ctx.DIDs) != 1 || ctx.DIDs[0] != "+18005551000" {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}

func TestResolveContextByName_UnknownNameReturnsErrContextNotFound(t *testing.T) {
	_, err := ResolveContextByName(testConfig(), "nope")
	if !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("expected ErrContextNotFound, got %v", err)
	}
}

func TestResolveCampaign_MatchesName(t *testing.T) {
	c, err := ResolveCampaign(testConfig(), "spring-promo")
	if err != nil {
		t.Fatalf("ResolveCampaign: %v", err)
	}
	if c.ContextName != "sales" {
		t.Fatalf("campaign context = %q, want sales", c.ContextName)
	}
}

func TestResolveCampaign_UnknownNameErrors(t *testing.T) {
	if _, err := ResolveCampaign(testConfig(), "nope"); err == nil {
		t.Fatalf("expected an error for an unknown campaign")
	}
}
