// SPDX-License-Identifier: AGPL-3.0-or-later
// canis - realtime messaging and voice core
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package apierror_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Wolftown-io/canis/internal/apierror"
)

func TestWrapHidesCauseButUnwraps(t *testing.T) {
	t.Parallel()
	cause := errors.New("dial tcp: connection refused")
	wrapped := apierror.Wrap(cause, "corr-1")

	if wrapped.Kind != apierror.KindInternal {
		t.Fatalf("expected KindInternal, got %s", wrapped.Kind)
	}
	if wrapped.Error() == cause.Error() {
		t.Fatal("the client-facing message must not equal the raw cause")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected Unwrap to expose the original cause to errors.Is")
	}
}

func TestAsExtractsTypedError(t *testing.T) {
	t.Parallel()
	wrapped := fmt.Errorf("handler: %w", apierror.ErrNotFound)

	got, ok := apierror.As(wrapped)
	if !ok {
		t.Fatal("expected As to find the wrapped *Error")
	}
	if got.Kind != apierror.KindNotFound {
		t.Fatalf("expected KindNotFound, got %s", got.Kind)
	}
}

func TestAsRejectsPlainErrors(t *testing.T) {
	t.Parallel()
	if _, ok := apierror.As(errors.New("plain")); ok {
		t.Fatal("expected As to reject an error that isn't an *Error")
	}
}

func TestWithRetryAfterSetsDuration(t *testing.T) {
	t.Parallel()
	err := apierror.New(apierror.KindRateLimited, "slow down").WithRetryAfter(2 * time.Second)
	if err.RetryAfter != 2*time.Second {
		t.Fatalf("expected RetryAfter to be set, got %v", err.RetryAfter)
	}
}
