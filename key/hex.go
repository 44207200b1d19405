// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package key

import (
	"encoding/hex"
	"fmt"
)

// Hex marshals a Key as a 0x-prefixed hex string in JSON, for use in test
// fixtures and debug output where raw bytes are unreadable.
type Hex Key

func (h Hex) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"0x%s"`, hex.EncodeToString(h))), nil
}

func (h *Hex) UnmarshalJSON(input []byte) error {
	if len(input) >= 2 && input[0] == '"' && input[len(input)-1] == '"' {
		input = input[1 : len(input)-1]
	}
	if len(input) >= 2 && input[0] == '0' && (input[1] == 'x' || input[1] == 'X') {
		input = input[2:]
	}
	decoded, err := hex.DecodeString(string(input))
	if err != nil {
		return fmt.Errorf("key.Hex: %w", err)
	}
	*h = decoded
	return nil
}

// Key returns the plain Key value.
func (h Hex) Key() Key { return Key(h) }

// CeilDiv returns ceil(n/d) for positive integers, used to compute
// half_full = ceil(limit/2).
func CeilDiv(n, d int) int {
	if d <= 0 {
		panic("key: CeilDiv by non-positive denominator")
	}
	return (n + d - 1) / d
}
