//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of JSONTable.
//
// JSONTable is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// JSONTable is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with JSONTable. If not, see https://www.gnu.org/licenses/.


package aggregate

import (
	"context"

	"github.com/aaronlmathis/jsontable/core"
)

// Aggregator defines the interface for data aggregation operations.
// Aggregators fold the rows of one group into a single summary value.
type Aggregator interface {
	// Add processes a row for aggregation.
	Add(ctx context.Context, record core.Record) error
	// Result returns the aggregated value.
	Result() (interface{}, error)
	// Clone returns a fresh aggregator with the same configuration.
	Clone() Aggregator
}
