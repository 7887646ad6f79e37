// Copyright 2026 the Dirwarden contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package constable provides error values that can be declared as constants.
package constable

var _ error = Error("")

type Error string

func (e Error) Error() string {
	return string(e)
}
