package redisstore

import "github.com/redis/go-redis/v9"

// Every read-modify-write on an account runs as one script so that Redis
// executes it without interleaving. All keys must live on the same node.

var createAccountScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 1 then
		return 0
	end

	local member = ARGV[7]
	redis.call("HSET", KEYS[1],
		"user_id", ARGV[1],
		"name", ARGV[2],
		"credits", ARGV[3],
		"referrer_id", ARGV[4],
		"referral_rewarded", ARGV[10],
		"joined_at", ARGV[5],
		"last_active_at", ARGV[8],
		"banned", "0",
		"ban_at", "",
		"daily_streak", ARGV[9],
		"member", member)

	redis.call("ZADD", KEYS[2], ARGV[3], member)
	redis.call("ZADD", KEYS[3], ARGV[5], member)
	redis.call("ZADD", KEYS[4], ARGV[8], member)
	redis.call("ZADD", KEYS[5], "NX", 0, member)
	redis.call("HINCRBY", KEYS[6], "credits", ARGV[3])
	redis.call("HSET", KEYS[7], ARGV[1], ARGV[6])

	if ARGV[4] ~= "" then
		redis.call("ZINCRBY", KEYS[8], 1, ARGV[4])
		if ARGV[10] == "0" then
			redis.call("ZADD", KEYS[9], ARGV[5], ARGV[1])
		end
	end

	return 1
`)

// incrementScript returns {status, value}: status -1 when the account is
// missing, 0 when the floor guard rejected the update, 1 on success.
var incrementScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return {-1, 0}
	end

	local field = ARGV[1]
	local delta = tonumber(ARGV[2])
	local mode = ARGV[3]
	local floor = tonumber(ARGV[4])

	local current = tonumber(redis.call("HGET", KEYS[1], field) or "0")
	local updated = current + delta

	if mode == "floor" and updated < floor then
		return {0, current}
	end
	if mode == "clamp" and updated < floor then
		updated = floor
	end

	redis.call("HSET", KEYS[1], field, updated)

	if field == "credits" then
		local member = redis.call("HGET", KEYS[1], "member")
		redis.call("ZADD", KEYS[2], updated, member)
		redis.call("HINCRBY", KEYS[3], "credits", updated - current)
	end

	return {1, updated}
`)

var setFieldScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return -1
	end
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
`)

var touchScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return -1
	end
	redis.call("HSET", KEYS[1], "last_active_at", ARGV[1])
	local member = redis.call("HGET", KEYS[1], "member")
	redis.call("ZADD", KEYS[2], ARGV[1], member)
	return 1
`)

var banScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return -1
	end
	redis.call("HSET", KEYS[1], "banned", ARGV[1], "ban_at", ARGV[2])
	return 1
`)

var markReferralScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return -1
	end
	if redis.call("HGET", KEYS[1], "referral_rewarded") == "1" then
		return 0
	end
	redis.call("HSET", KEYS[1], "referral_rewarded", "1")
	redis.call("ZREM", KEYS[2], ARGV[1])
	return 1
`)

// incrementStatsScript takes field/delta pairs in ARGV.
var incrementStatsScript = redis.NewScript(`
	local member = redis.call("HGET", KEYS[4], "member")
	for i = 1, #ARGV, 2 do
		local field = ARGV[i]
		local delta = ARGV[i + 1]
		redis.call("HINCRBY", KEYS[1], field, delta)
		redis.call("HINCRBY", KEYS[2], field, delta)
		if field == "total_searches" and member then
			redis.call("ZINCRBY", KEYS[3], delta, member)
		end
	end
	return 1
`)
