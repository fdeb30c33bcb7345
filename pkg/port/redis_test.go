package port

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nobletooth/twine/pkg/config"
	"github.com/nobletooth/twine/pkg/keyspace"
	"github.com/nobletooth/twine/pkg/stack"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHandler returns a handler over a fresh keyspace.
func newTestHandler(t *testing.T) *redisHandler {
	t.Helper()
	ks, err := keyspace.NewWith(4, stack.BackingDoubly, true /*verifyLists*/)
	require.NoError(t, err)
	rh, err := newRedisHandler(ks)
	require.NoError(t, err)
	return rh
}

// run executes the space separated command line on the handler.
func run(rh *redisHandler, line string) redisOutput {
	fields := strings.Fields(line)
	return rh.handle(redisCommand{command: strings.ToUpper(fields[0]), args: fields[1:]})
}

// assertArray checks the output is an array reply holding `expected`.
func assertArray(t *testing.T, expected []string, output redisOutput) {
	t.Helper()
	require.Nil(t, output.err)
	require.NotNil(t, output.writeArray)
	assert.Equal(t, expected, *output.writeArray)
}

// assertInt checks the output is an integer reply equal to `expected`.
func assertInt(t *testing.T, expected int, output redisOutput) {
	t.Helper()
	require.Nil(t, output.err)
	require.NotNil(t, output.writeInt)
	assert.Equal(t, expected, *output.writeInt)
}

// assertBulk checks the output is a bulk string reply equal to `expected`.
func assertBulk(t *testing.T, expected string, output redisOutput) {
	t.Helper()
	require.Nil(t, output.err)
	require.NotNil(t, output.writeBulk)
	assert.Equal(t, expected, *output.writeBulk)
}

// assertError checks the output is an error reply containing `substring`.
func assertError(t *testing.T, substring string, output redisOutput) {
	t.Helper()
	require.NotNil(t, output.err)
	assert.Contains(t, *output.err, substring)
}

func TestNewRedisHandler(t *testing.T) {
	_, err := newRedisHandler(nil)
	assert.Error(t, err)
}

func TestRedisHandler_Generic(t *testing.T) {
	rh := newTestHandler(t)
	assert.Equal(t, "PONG", run(rh, "PING").writeString)
	assertBulk(t, "hi", run(rh, "ping hi"))
	assertError(t, "unknown command 'NOPE'", run(rh, "NOPE"))
	assertError(t, "wrong number of arguments for 'llen' command", run(rh, "LLEN"))
	assertError(t, "wrong number of arguments for 'lindex' command", run(rh, "LINDEX a 1 2"))

	quit := run(rh, "QUIT")
	assert.True(t, quit.closeConnection)
	assert.Equal(t, RedisOk, quit.writeString)

	assertInt(t, 3, run(rh, "RPUSH list a b c"))
	assertInt(t, 1, run(rh, "SPUSH plates p"))
	assertInt(t, 2, run(rh, "DBSIZE"))
	assert.Equal(t, "list", run(rh, "TYPE list").writeString)
	assert.Equal(t, "stack", run(rh, "TYPE plates").writeString)
	assert.Equal(t, "none", run(rh, "TYPE missing").writeString)
	assertInt(t, 2, run(rh, "EXISTS list plates missing"))
	assertArray(t, []string{"list", "plates"}, run(rh, "KEYS *"))
	assertArray(t, []string{"plates"}, run(rh, "KEYS p*"))
	assertInt(t, 1, run(rh, "RPUSH a/b x"))
	assertArray(t, []string{"a/b", "list", "plates"}, run(rh, "KEYS *"))
	assertArray(t, []string{"a/b"}, run(rh, "KEYS a/*"))
	assertInt(t, 1, run(rh, "DEL list missing"))
	assert.Equal(t, RedisOk, run(rh, "FLUSHALL").writeString)
	assertInt(t, 0, run(rh, "DBSIZE"))
	assertArray(t, []string{}, run(rh, "KEYS *"))
}

func TestRedisHandler_Lists(t *testing.T) {
	rh := newTestHandler(t)

	t.Run("push", func(t *testing.T) {
		assertInt(t, 2, run(rh, "RPUSH letters B C"))
		assertInt(t, 4, run(rh, "LPUSH letters X A")) // Prepends X, then A.
		assertArray(t, []string{"A", "X", "B", "C"}, run(rh, "LRANGE letters 0 -1"))
		assertInt(t, 4, run(rh, "LLEN letters"))
	})

	t.Run("index", func(t *testing.T) {
		assertBulk(t, "A", run(rh, "LINDEX letters 0"))
		assertBulk(t, "C", run(rh, "LINDEX letters 3"))
		assertError(t, "index out of range", run(rh, "LINDEX letters 4"))
		assertError(t, "index out of range", run(rh, "LINDEX letters -1"))
		assertError(t, "index out of range", run(rh, "LINDEX missing 0"))
		assertError(t, "not an integer", run(rh, "LINDEX letters one"))
	})

	t.Run("insert", func(t *testing.T) {
		assertInt(t, 5, run(rh, "LINSERTAT letters 4 D")) // Index == length appends.
		assertInt(t, 6, run(rh, "LINSERTAT letters 0 Z"))
		assertError(t, "index out of range", run(rh, "LINSERTAT letters 7 Q"))
		assertArray(t, []string{"Z", "A", "X", "B", "C", "D"}, run(rh, "LRANGE letters 0 -1"))
		assertInt(t, 1, run(rh, "LINSERTAT created 0 only"))
		assertError(t, "index out of range", run(rh, "LINSERTAT never 1 x"))
		assertInt(t, 0, run(rh, "EXISTS never"))
	})

	t.Run("replace", func(t *testing.T) {
		assert.Equal(t, RedisOk, run(rh, "LREPLACE letters X Y").writeString)
		assertError(t, "item not found", run(rh, "LREPLACE letters X W"))
		assertArray(t, []string{"Z", "A", "Y", "B", "C", "D"}, run(rh, "LRANGE letters 0 -1"))
	})

	t.Run("range", func(t *testing.T) {
		assertArray(t, []string{"A", "Y"}, run(rh, "LRANGE letters 1 2"))
		assertArray(t, []string{"C", "D"}, run(rh, "LRANGE letters -2 100"))
		assertArray(t, []string{}, run(rh, "LRANGE letters 4 1"))
		assertArray(t, []string{}, run(rh, "LRANGE missing 0 -1"))
		assertArray(t, []string{"D", "C", "B", "Y", "A", "Z"}, run(rh, "LREVRANGE letters 0 -1"))
		assertArray(t, []string{"D", "C"}, run(rh, "LREVRANGE letters 0 1"))
	})

	t.Run("find", func(t *testing.T) {
		assertBulk(t, "Y", run(rh, "LFIND letters Y*"))
		assertBulk(t, "Z", run(rh, "LFIND letters *"))
		assert.True(t, run(rh, "LFIND letters nothing*").writeNil)
		assert.True(t, run(rh, "LFIND missing *").writeNil)

		assertInt(t, 2, run(rh, "RPUSH paths path/to/file other"))
		assertBulk(t, "path/to/file", run(rh, "LFIND paths *"))
		assertBulk(t, "path/to/file", run(rh, "LFIND paths path/*"))
	})

	t.Run("remove", func(t *testing.T) {
		assertInt(t, 5, run(rh, "RPUSH dups a b a c a"))
		assertInt(t, 1, run(rh, "LREM dups 1 a"))
		assertArray(t, []string{"b", "a", "c", "a"}, run(rh, "LRANGE dups 0 -1"))
		assertInt(t, 2, run(rh, "LREM dups 0 a"))
		assertArray(t, []string{"b", "c"}, run(rh, "LRANGE dups 0 -1"))
		assertInt(t, 0, run(rh, "LREM dups 5 zzz"))
		assertError(t, "negative count", run(rh, "LREM dups -1 b"))
		assertInt(t, 1, run(rh, "LREM dups 1 b"))
		assertInt(t, 1, run(rh, "LREM dups 1 c"))
		assertInt(t, 0, run(rh, "EXISTS dups")) // Emptied lists are removed.
	})
}

func TestRedisHandler_Stacks(t *testing.T) {
	rh := newTestHandler(t)
	assertInt(t, 3, run(rh, "SPUSH plates p1 p2 p3"))
	assertInt(t, 3, run(rh, "SLEN plates"))
	assertBulk(t, "p3", run(rh, "SPEEK plates"))
	assertBulk(t, "p3", run(rh, "SPOP plates"))
	assertBulk(t, "p2", run(rh, "SPOP plates"))
	assertBulk(t, "p1", run(rh, "SPOP plates"))
	assert.True(t, run(rh, "SPOP plates").writeNil)
	assert.True(t, run(rh, "SPEEK plates").writeNil)
	assertInt(t, 0, run(rh, "SLEN plates"))

	t.Run("wrong type", func(t *testing.T) {
		assertInt(t, 1, run(rh, "RPUSH list x"))
		assertInt(t, 1, run(rh, "SPUSH stack y"))
		output := run(rh, "SPUSH list z")
		require.NotNil(t, output.err)
		assert.True(t, strings.HasPrefix(*output.err, "WRONGTYPE"), *output.err)
		assertError(t, "WRONGTYPE", run(rh, "LLEN stack"))
		assertError(t, "WRONGTYPE", run(rh, "SPOP list"))
	})
}

func TestRangeBounds(t *testing.T) {
	for _, testCase := range []struct {
		name                string
		start, stop, length int
		from, to            int
	}{
		{name: "all", start: 0, stop: -1, length: 5, from: 0, to: 5},
		{name: "middle", start: 1, stop: 3, length: 5, from: 1, to: 4},
		{name: "clamped stop", start: 2, stop: 99, length: 5, from: 2, to: 5},
		{name: "clamped start", start: -99, stop: 1, length: 5, from: 0, to: 2},
		{name: "inverted", start: 3, stop: 1, length: 5, from: 0, to: 0},
		{name: "empty list", start: 0, stop: -1, length: 0, from: 0, to: 0},
		{name: "start past end", start: 7, stop: 9, length: 5, from: 0, to: 0},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			from, to := rangeBounds(testCase.start, testCase.stop, testCase.length)
			assert.Equal(t, testCase.from, from)
			assert.Equal(t, testCase.to, to)
		})
	}
}

// freeAddress returns a local address nothing listens on.
func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestRunRedisServer(t *testing.T) {
	addr := freeAddress(t)
	config.SetTestFlag(t, "address", addr)
	ks, err := keyspace.NewWith(2, stack.BackingArray, true /*verifyLists*/)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serverErr := make(chan error, 1)
	go func() { serverErr <- RunRedisServer(ctx, ks) }()

	client := redis.NewClient(&redis.Options{Addr: addr, Protocol: 2, MaxRetries: 0, DisableIdentity: true})
	t.Cleanup(func() { _ = client.Close() })
	require.Eventually(t, func() bool {
		return client.Ping(ctx).Err() == nil
	}, 5*time.Second, 20*time.Millisecond)

	t.Run("lists", func(t *testing.T) {
		length, err := client.RPush(ctx, "letters", "A", "B", "C").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(3), length)

		item, err := client.LIndex(ctx, "letters", 1).Result()
		require.NoError(t, err)
		assert.Equal(t, "B", item)

		require.NoError(t, client.Do(ctx, "LINSERTAT", "letters", 2, "X").Err())
		require.NoError(t, client.LRem(ctx, "letters", 1, "B").Err())
		items, err := client.LRange(ctx, "letters", 0, -1).Result()
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "X", "C"}, items)

		err = client.Do(ctx, "LREPLACE", "letters", "nope", "Y").Err()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "item not found")

		_, err = client.LIndex(ctx, "letters", 10).Result()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index out of range")

		reversed, err := client.Do(ctx, "LREVRANGE", "letters", 0, -1).StringSlice()
		require.NoError(t, err)
		assert.Equal(t, []string{"C", "X", "A"}, reversed)
	})

	t.Run("stacks", func(t *testing.T) {
		require.NoError(t, client.Do(ctx, "SPUSH", "plates", "p1", "p2").Err())
		top, err := client.Do(ctx, "SPOP", "plates").Text()
		require.NoError(t, err)
		assert.Equal(t, "p2", top)
		_, err = client.Do(ctx, "SPOP", "missing").Text()
		assert.ErrorIs(t, err, redis.Nil)
	})

	t.Run("keys", func(t *testing.T) {
		keys, err := client.Keys(ctx, "*").Result()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"letters", "plates"}, keys)
	})

	cancel()
	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Server didn't stop after its context was cancelled.")
	}
}

func TestRunRedisServer_EmptyAddress(t *testing.T) {
	config.SetTestFlag(t, "address", "")
	ks, err := keyspace.NewWith(1, stack.BackingArray, false)
	require.NoError(t, err)
	assert.Error(t, RunRedisServer(context.Background(), ks))
}
