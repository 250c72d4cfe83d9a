package bootstrap

import (
	"context"
	"log"

	"github.com/HyperbaseApp/hyperbase/pkg/gossip/antientropy"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/sampling"
	"github.com/HyperbaseApp/hyperbase/pkg/gossip/wire"
)

// router dispatches a decoded Message to the service that owns its variant
// (spec §3's message envelope names exactly one populated variant per
// message). It is the Handler passed to the gossip server.
type router struct {
	sampling    *sampling.Service
	antientropy *antientropy.Service
}

func (r *router) Handle(ctx context.Context, remoteAddr string, msg wire.Message) {
	switch {
	case msg.Sampling != nil:
		r.sampling.HandleSampling(ctx, msg.Sender, *msg.Sampling)
	case msg.HeaderRequest != nil:
		r.antientropy.HandleHeaderRequest(ctx, msg.Sender, *msg.HeaderRequest)
	case msg.HeaderResponse != nil:
		r.antientropy.HandleHeaderResponse(ctx, msg.Sender, *msg.HeaderResponse)
	case msg.ContentRequest != nil:
		r.antientropy.HandleContentRequest(ctx, msg.Sender, *msg.ContentRequest)
	case msg.ContentResponse != nil:
		r.antientropy.HandleContentResponse(ctx, msg.Sender, *msg.ContentResponse)
	case msg.ContentBroadcast != nil:
		r.antientropy.HandleContentBroadcast(ctx, msg.Sender, *msg.ContentBroadcast)
	default:
		log.Printf("[Bootstrap] received message from %s (via %s) with no populated variant", msg.Sender, remoteAddr)
	}
}
