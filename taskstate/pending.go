// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package taskstate

import "context"

// Pending is the result of an opportunistic remote call. Callers may ignore
// it; the local write it accompanies has already succeeded.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func resolved(err error) *Pending {
	p := newPending()
	p.resolve(err)
	return p
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the remote call finished or was skipped
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the remote call finishes and returns its error
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
