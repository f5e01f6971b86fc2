// amplicon: a pipeline for processing and analyzing 16S rRNA
// amplicon sequencing data.
// Copyright (c) 2024 Villapol laboratory.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/villapollab/fmt-ad-w-abx/blob/master/LICENSE.txt>.

package internal

import "math/rand"

// Rand produces random numbers for bootstrapping and permutation
// testing. Deriving each unit of work from its own seed keeps results
// reproducible under parallelism.
type Rand = rand.Rand

// NewRand returns a seeded random number generator.
func NewRand(seed int64) *Rand {
	return rand.New(rand.NewSource(seed))
}
