// Package api maps every matrimony REST endpoint onto a typed call. Responses
// are decoded into explicit wire contracts and normalized into models.
package api

import (
	"context"
	"fmt"

	"github.com/rupesh-2/matrimonial-UI/internal/gateway"
)

// Doer sends one request through the gateway.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// LikeRoutes selects the URL scheme for like and unlike.
type LikeRoutes int

const (
	// DiscoverRoutes uses POST /api/discover/like/:id and DELETE /api/discover/unlike/:id.
	DiscoverRoutes LikeRoutes = iota
	// LikesRoutes uses POST and DELETE /api/likes/:id.
	LikesRoutes
)

// Client is the typed API surface the stores depend on.
type Client struct {
	gw     Doer
	routes LikeRoutes
}

// New wraps gw.
func New(gw Doer, routes LikeRoutes) *Client {
	if gw == nil {
		panic("api: gateway must not be nil")
	}
	return &Client{gw: gw, routes: routes}
}

func (c *Client) likePath(userID int64) string {
	if c.routes == LikesRoutes {
		return fmt.Sprintf("/api/likes/%d", userID)
	}
	return fmt.Sprintf("/api/discover/like/%d", userID)
}

func (c *Client) unlikePath(userID int64) string {
	if c.routes == LikesRoutes {
		return fmt.Sprintf("/api/likes/%d", userID)
	}
	return fmt.Sprintf("/api/discover/unlike/%d", userID)
}
