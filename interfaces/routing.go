package interfaces

import (
	"context"

	"github.com/imsportal/filingstack/dto"
)

type AddressRouter interface {
	// Route returns nil, nil when no address matches.
	Route(ctx context.Context, addresses []string) (*dto.RoutingResult, error)
}
