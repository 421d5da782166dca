// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capability

import (
	"context"
	"errors"
)

// Multi fans every write out to several stores.
// A failing store does not stop the others; the errors are joined.
type Multi []Store

// Set writes to every store
func (m Multi) Set(ctx context.Context, name string, value any) error {
	var errs []error
	for _, s := range m {
		if err := s.Set(ctx, name, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
