// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keycodec

import "github.com/dgryski/go-rendezvous"

// Sharder picks which of several equivalent output sinks should receive
// an emitted record's encoded key, using rendezvous (highest-random-
// weight) hashing. This only shards delivery across sinks the engine
// treats as interchangeable outputs — it never shards aggregation state
// itself, which stays single-threaded over one flow cache.
type Sharder struct {
	rdv *rendezvous.Rendezvous
}

// NewSharder builds a sharder over the given sink names. With an empty
// sinkNames, Pick returns the empty string.
func NewSharder(sinkNames []string) *Sharder {
	return &Sharder{rdv: rendezvous.New(sinkNames, hashString)}
}

func hashString(s string) uint64 { return Hash([]byte(s)) }

// Pick returns the sink name that should receive key.
func (s *Sharder) Pick(key []byte) string {
	return s.rdv.Lookup(string(key))
}
