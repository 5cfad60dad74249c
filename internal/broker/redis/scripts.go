package redis

import goredis "github.com/redis/go-redis/v9"

// Every state transition is a single script so that concurrent workers,
// possibly in different processes, never observe a half-applied change.

// reserveScript first returns expired reservations to the head of the
// ready list, then pops the oldest ready job and reserves it.
//
// KEYS[1] ready list, KEYS[2] reserved zset
// ARGV[1] job key prefix, ARGV[2] now (unix ms), ARGV[3] deadline (unix ms)
var reserveScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[2])
for i = #expired, 1, -1 do
  local id = expired[i]
  redis.call('ZREM', KEYS[2], id)
  local key = ARGV[1] .. id
  if redis.call('EXISTS', key) == 1 then
    redis.call('HSET', key, 'state', 'ready')
    redis.call('HDEL', key, 'deadline')
    redis.call('HINCRBY', key, 'timeouts', 1)
    redis.call('LPUSH', KEYS[1], id)
  end
end
while true do
  local id = redis.call('LPOP', KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[1] .. id
  if redis.call('HGET', key, 'state') == 'ready' then
    redis.call('HSET', key, 'state', 'reserved', 'deadline', ARGV[3])
    local reservation = redis.call('HINCRBY', key, 'reserves', 1)
    redis.call('ZADD', KEYS[2], ARGV[3], id)
    return {id, redis.call('HGET', key, 'payload'), redis.call('HGET', key, 'created_at'), tostring(reservation)}
  end
end
`)

// deleteScript removes a job wherever it currently is. Delete follows a
// stored result, so it does not check who holds the reservation.
//
// KEYS[1] ready list, KEYS[2] reserved zset, KEYS[3] job hash
// ARGV[1] job id
var deleteScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 0 then
  return 0
end
redis.call('DEL', KEYS[3])
redis.call('LREM', KEYS[1], 0, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// releaseScript moves a reserved job back to the head of the ready list,
// provided the reservation ARGV[2] is still the current one.
//
// KEYS[1] ready list, KEYS[2] reserved zset, KEYS[3] job hash
// ARGV[1] job id, ARGV[2] reservation
var releaseScript = goredis.NewScript(`
local current = redis.call('HMGET', KEYS[3], 'state', 'reserves')
if current[1] ~= 'reserved' or current[2] ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[3], 'state', 'ready')
redis.call('HDEL', KEYS[3], 'deadline')
redis.call('HINCRBY', KEYS[3], 'releases', 1)
redis.call('LPUSH', KEYS[1], ARGV[1])
return 1
`)

// buryScript parks a reserved job under the same reservation check as
// releaseScript.
//
// KEYS[1] reserved zset, KEYS[2] job hash
// ARGV[1] job id, ARGV[2] reservation
var buryScript = goredis.NewScript(`
local current = redis.call('HMGET', KEYS[2], 'state', 'reserves')
if current[1] ~= 'reserved' or current[2] ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], 'state', 'buried')
redis.call('HDEL', KEYS[2], 'deadline')
redis.call('HINCRBY', KEYS[2], 'buries', 1)
return 1
`)
