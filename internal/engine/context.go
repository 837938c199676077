package engine

import (
	"fmt"

	"github.com/corvidlabs/voxcore/internal/config"
)

// ErrContextNotFound is returned when no ContextConfig matches a call.
var ErrContextNotFound = fmt.Errorf("engine: no matching context")

// ResolveInboundContext finds the ContextConfig whose DIDs list contains
// calledNumber, the dialed number an inbound channel presents on entering
// the Stasis application.
func ResolveInboundContext(cfg *config.Config, calledNumber string) (config.ContextConfig, error) {
	for _, ctx := range cfg.Contexts {
		for _, did := range ctx.DIDs {
			if did == calledNumber {
				return ctx, nil
			}
		}
	}
	return config.ContextConfig{}, fmt.Errorf("%w: DID %q", ErrContextNotFound, calledNumber)
}

// ResolveContextByName finds the named ContextConfig, used for outbound
// calls where a Campaign names its context directly rather than routing by DID.
func ResolveContextByName(cfg *config.Config, name string) (config.ContextConfig, error) {
	for _, ctx := range cfg.Contexts {
		if ctx.Name == name {
			return ctx, nil
		}
	}
	return config.ContextConfig{}, fmt.Errorf("%w: name %q", ErrContextNotFound, name)
}

// ResolveCampaign finds a named Campaign, used by the dialer before placing
// an outbound call to determine its target context.
func ResolveCampaign(cfg *config.Config, name string) (config.Campaign, error) {
	for _, c := range cfg.Campaigns {
		if c.Name == name {
			return c, nil
		}
	}
	return config.Campaign{}, fmt.Errorf("engine: no campaign named %q", name)
}
