// Mgmt
// Copyright (C) 2013-2018+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package gasrpc is the grpc-based production Transport for
// exchange.BufferedExchange, referenced by exchange.go's Transport doc
// comment. A BufferedExchange's (K, V) pair is arbitrary per vertex-program
// instantiation (spec.md section 4.1 only requires it be associative and
// commutative on the message side), so there is no fixed .proto message to
// generate a marshaler for; instead this package registers a gob-based
// grpc.Codec and forces every call onto it, keeping the wire format generic
// the way BufferedExchange itself is generic.
package gasrpc

import (
	"bytes"
	"encoding/gob"
)

// gobCodec implements encoding.Codec (the interface grpc.ForceServerCodec
// and grpc.ForceCodec accept) by gob-encoding whatever value is handed to
// it. Both rawBatch and rawAck round-trip through it without any .proto
// definition.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return "gas-gob" }

// rawBatch is the wire message for one Deliver call: entries is itself a
// gob-encoded []exchange.Entry[K, V], encoded a second time by the caller
// (see Transport.SendBatch) so this package never needs to know K or V.
type rawBatch struct {
	SrcProc int
	Entries []byte
}

// rawAck is the empty wire response for a successful Deliver call.
type rawAck struct{}
