/*
   Copyright Mycophonic.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package huffman implements TrueHD's three static Huffman decode tables.
//
// The trees are built as explicit binary tries mirroring the reference
// implementation's nested-array table literals, rather than flattened into
// a lookup-by-code-length table: the source shape makes the three tables'
// shared "chain" structure (a run of single-leaf extensions down to a
// 9-bit-deep pair) visually obvious, which a flattened table would hide.
package huffman

import (
	"errors"
	"fmt"

	"github.com/mycophonic/truehd/internal/bitio"
)

// ErrOverflow is returned when a code cannot be resolved within the
// tables' maximum depth. The three built-in tables are complete binary
// tries (every internal node has both children), so this can only surface
// as a wrapped bitio.ErrUnderflow when the bitstream runs out before a
// leaf is reached.
var ErrOverflow = errors.New("huffman: overflow")

type node struct {
	value     int32
	leaf      bool
	zero, one *node
}

func leaf(v int32) *node { return &node{leaf: true, value: v} }

func branch(zero, one *node) *node { return &node{zero: zero, one: one} }

// chainNeg builds the shared "-7..-1" 9-bit-deep chain common to all three
// tables.
func chainNeg() *node {
	n := branch(leaf(-7), leaf(-7))
	for _, v := range []int32{-6, -5, -4, -3, -2, -1} {
		n = branch(n, leaf(v))
	}

	return n
}

// chainPosDesc builds the positive-side chain: a 9-bit-deep pair at value
// top, descending by one per level out to top-6.
func chainPosDesc(top int32) *node {
	n := branch(leaf(top), leaf(top))
	for i := int32(1); i <= 6; i++ {
		n = branch(n, leaf(top-i))
	}

	return n
}

// Table1 covers values -7..10.
var Table1 = branch(
	branch(chainNeg(), chainPosDesc(10)),
	branch(branch(leaf(0), leaf(1)), branch(leaf(2), leaf(3))),
)

// Table2 covers values -7..8.
var Table2 = branch(
	branch(chainNeg(), chainPosDesc(8)),
	branch(leaf(0), leaf(1)),
)

// Table3 covers values -7..7.
var Table3 = branch(
	branch(chainNeg(), chainPosDesc(7)),
	leaf(0),
)

// ByIndex selects one of the three static tables by TrueHD's 2-bit huffman
// table selector (1, 2 or 3; 0 means "no Huffman coding" and is handled by
// the caller, not here).
func ByIndex(idx int) (*node, error) {
	switch idx {
	case 1:
		return Table1, nil
	case 2:
		return Table2, nil
	case 3:
		return Table3, nil
	default:
		return nil, fmt.Errorf("huffman: invalid table index %d", idx)
	}
}

// Decode descends tree one bit at a time until a leaf is reached.
func Decode(r *bitio.Reader, tree *node) (int32, error) {
	n := tree

	for !n.leaf {
		bit, err := r.Bit()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrOverflow, err)
		}

		if bit == 0 {
			n = n.zero
		} else {
			n = n.one
		}
	}

	return n.value, nil
}
