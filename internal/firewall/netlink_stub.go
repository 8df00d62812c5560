//go:build !linux
// +build !linux

package firewall

import (
	"context"
	"errors"

	"grimm.is/originguard/internal/policy"
)

// NetlinkReader is only available on Linux.
type NetlinkReader struct{}

// NewNetlinkReader always fails outside Linux.
func NewNetlinkReader() (*NetlinkReader, error) {
	return nil, errors.New("netlink query requires linux")
}

func (r *NetlinkReader) ReadState(ctx context.Context, pol policy.Policy) (State, error) {
	return State{}, errors.New("netlink query requires linux")
}
