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

package transport

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"biflowagg/internal/keycodec"
	"biflowagg/pkg/aggregator"
)

// RedisEvaler abstracts the minimal surface needed from a Redis client.
// Cmdable.Eval returns a *redis.Cmd rather than (interface{}, error)
// directly, so GoRedisEvaler adapts a real client to this interface.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// GoRedisEvaler adapts a *redis.Client to RedisEvaler.
type GoRedisEvaler struct{ c *redis.Client }

// NewGoRedisEvaler dials addr lazily (go-redis connects on first use).
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

func (g *GoRedisEvaler) Close() error { return g.c.Close() }

// RedisSink delivers emitted aggregates to Redis as one hash per distinct
// set of output field values, applying each emit idempotently: a replayed
// emit of the same aggregate (same field values, same TimeFirst/TimeLast/
// Count) is a no-op rather than a double-write. OutputRecord carries no
// key fields, so the hash key is derived from the aggregated field names
// and values; two emits of one flow whose aggregated values differ land
// in different hashes. This matters because a crash between Send returning and
// the engine's own flush/ack bookkeeping would otherwise double-count an
// aggregate on restart.
type RedisSink struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisSink builds a sink writing through client, guarding commit
// markers with markerTTL (defaulting to 24h, comfortably longer than any
// plausible restart/retry window).
func NewRedisSink(client RedisEvaler, markerTTL time.Duration) *RedisSink {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisSink{client: client, markerTTL: markerTTL}
}

// redisEmitScript marks (recordKey, commitID) as applied and, only the
// first time, writes the record's flattened fields into a hash. Mirrors
// the SETNX-guarded HINCRBY pattern used for commit persistence, adapted
// from a delta-application primitive to a write-once snapshot primitive.
const redisEmitScript = `
local hashKey = KEYS[1]
local markerKey = KEYS[2]
local ttlSeconds = tonumber(ARGV[1])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  for i = 2, #ARGV, 2 do
    redis.call('HSET', hashKey, ARGV[i], ARGV[i+1])
  end
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

func redisHashKey(flowKey string) string   { return fmt.Sprintf("biflowagg:flow:%s", flowKey) }
func redisMarkerKey(commitID string) string { return fmt.Sprintf("biflowagg:commit:%s", commitID) }

// Send flattens rec's fields into Redis string values and applies them
// idempotently, keyed by a commit ID derived from the record's content
// so a bit-identical replay of the same emit is always a no-op.
func (r *RedisSink) Send(ctx context.Context, rec aggregator.OutputRecord) error {
	flowKey, commitID := commitIdentity(rec)

	args := []interface{}{int(r.markerTTL.Seconds())}
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, name, fieldToString(rec.Fields[name]))
	}
	args = append(args, "TIME_FIRST", strconv.FormatInt(rec.TimeFirst, 10))
	args = append(args, "TIME_LAST", strconv.FormatInt(rec.TimeLast, 10))
	args = append(args, "COUNT", strconv.FormatUint(rec.Count, 10))

	keys := []string{redisHashKey(flowKey), redisMarkerKey(commitID)}
	if _, err := r.client.Eval(ctx, redisEmitScript, keys, args...); err != nil {
		return fmt.Errorf("transport: redis emit flow=%s commit=%s: %w", flowKey, commitID, err)
	}
	return nil
}

// commitIdentity derives a hash-key string from rec's sorted field names
// and values, and a content-addressed commit ID that also covers
// TimeFirst/TimeLast/Count, so retried emits of the exact same aggregate
// collapse to the same Redis keys.
func commitIdentity(rec aggregator.OutputRecord) (flowKey, commitID string) {
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	for _, name := range names {
		buf = append(buf, name...)
		buf = append(buf, ':')
		buf = append(buf, fieldToString(rec.Fields[name])...)
		buf = append(buf, ';')
	}
	flowKey = strconv.FormatUint(keycodec.Hash(buf), 16)

	buf = append(buf, []byte(strconv.FormatInt(rec.TimeFirst, 10))...)
	buf = append(buf, []byte(strconv.FormatInt(rec.TimeLast, 10))...)
	buf = append(buf, []byte(strconv.FormatUint(rec.Count, 10))...)
	commitID = strconv.FormatUint(keycodec.Hash(buf), 16)
	return flowKey, commitID
}

func fieldToString(f aggregator.FieldResult) string {
	if !f.IsArray {
		return scalarToString(f.Scalar)
	}
	var out []byte
	for i, s := range f.Array.Elems {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, scalarToString(s)...)
	}
	return string(out)
}

func scalarToString(s aggregator.Scalar) string {
	switch {
	case s.Kind.IsSignedInt():
		return strconv.FormatInt(s.Int, 10)
	case s.Kind.IsUnsignedInt():
		return strconv.FormatUint(s.UInt, 10)
	case s.Kind.IsFloat():
		return strconv.FormatFloat(s.Float, 'g', -1, 64)
	default:
		return string(s.Bytes)
	}
}
