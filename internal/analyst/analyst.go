package analyst

import (
	"context"

	"github.com/web3guy0/overseer/internal/types"
)

// Analyst turns recent market structure into a trade proposal. A nil
// proposal with a nil error means "no setup right now", which is the common
// case. Proposals are advisory; the supervisor still runs them through the
// conviction tracker and the equity protector.
type Analyst interface {
	Analyze(ctx context.Context, symbol string, bars []types.Bar) (*types.Proposal, error)
}
