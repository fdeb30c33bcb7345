package port

import (
	"errors"
	"iter"
	"slices"
	"strconv"

	"github.com/nobletooth/twine/pkg/dlist"
	"github.com/nobletooth/twine/pkg/keyspace"
	"github.com/nobletooth/twine/pkg/scan"
	"github.com/nobletooth/twine/pkg/stack"
)

var errNotInteger = errors.New("value is not an integer or out of range")

// parseInt parses a command argument as an integer.
func parseInt(arg string) (int, error) {
	value, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errNotInteger
	}
	return value, nil
}

func (rh *redisHandler) ping(args []string) redisOutput {
	if len(args) == 1 {
		return writeRedisBulk(args[0])
	}
	return writeRedisString("PONG")
}

func (rh *redisHandler) del(args []string) redisOutput {
	return writeRedisInt(rh.ks.Delete(args...))
}

func (rh *redisHandler) exists(args []string) redisOutput {
	count := 0
	for _, name := range args {
		if rh.ks.Exists(name) {
			count++
		}
	}
	return writeRedisInt(count)
}

func (rh *redisHandler) keyType(args []string) redisOutput {
	return writeRedisString(string(rh.ks.Type(args[0])))
}

func (rh *redisHandler) keys(args []string) redisOutput {
	return writeRedisArray(slices.Sorted(scan.MatchGlob(args[0], rh.ks.Names())))
}

func (rh *redisHandler) dbSize([]string) redisOutput {
	return writeRedisInt(rh.ks.Len())
}

func (rh *redisHandler) flushAll([]string) redisOutput {
	rh.ks.Flush()
	return writeRedisString(RedisOk)
}

// push adds every item to the list at args[0] with `add` and replies with the new length.
func (rh *redisHandler) push(args []string, add func(list *dlist.List[string], item string)) redisOutput {
	length := 0
	err := rh.ks.UpdateList(args[0], true /*create*/, func(list *dlist.List[string]) error {
		for _, item := range args[1:] {
			add(list, item)
		}
		length = list.Len()
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisInt(length)
}

// rpush appends: RPUSH key item [item ...].
func (rh *redisHandler) rpush(args []string) redisOutput {
	return rh.push(args, (*dlist.List[string]).Append)
}

// lpush prepends, so the last given item ends up at the head: LPUSH key item [item ...].
func (rh *redisHandler) lpush(args []string) redisOutput {
	return rh.push(args, (*dlist.List[string]).Prepend)
}

// lindex reads one item: LINDEX key index. Negative indexes are out of range.
func (rh *redisHandler) lindex(args []string) redisOutput {
	index, err := parseInt(args[1])
	if err != nil {
		return writeRedisError(err)
	}
	var item string
	err = rh.ks.ViewList(args[0], func(list *dlist.List[string]) (err error) {
		item, err = list.GetAtIndex(index)
		return err
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisBulk(item)
}

// linsertAt inserts at a position: LINSERTAT key index item. Replies with the new length.
func (rh *redisHandler) linsertAt(args []string) redisOutput {
	index, err := parseInt(args[1])
	if err != nil {
		return writeRedisError(err)
	}
	length := 0
	err = rh.ks.UpdateList(args[0], true /*create*/, func(list *dlist.List[string]) error {
		if err := list.InsertAtIndex(index, args[2]); err != nil {
			return err
		}
		length = list.Len()
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisInt(length)
}

// lreplace swaps the first occurrence of a value: LREPLACE key old new.
func (rh *redisHandler) lreplace(args []string) redisOutput {
	err := rh.ks.UpdateList(args[0], true /*create*/, func(list *dlist.List[string]) error {
		return list.Replace(args[1], args[2])
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisString(RedisOk)
}

// lrem deletes occurrences of a value from the head: LREM key count item. A zero count deletes all of them.
// Replies with the number of deleted items.
func (rh *redisHandler) lrem(args []string) redisOutput {
	count, err := parseInt(args[1])
	if err != nil {
		return writeRedisError(err)
	}
	if count < 0 {
		return writeRedisError(errors.New("negative count is not supported"))
	}
	deleted := 0
	err = rh.ks.UpdateList(args[0], true /*create*/, func(list *dlist.List[string]) error {
		deleted = list.DeleteN(args[2], count)
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisInt(deleted)
}

// rangeBounds converts Redis style inclusive [start, stop] offsets, where negative offsets count from the end, into
// a half open [from, to) range over `length` items.
func rangeBounds(start, stop, length int) (from, to int) {
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	start = max(start, 0)
	stop = min(stop, length-1)
	if start > stop {
		return 0, 0
	}
	return start, stop + 1
}

// collectRange lazily walks `items` and keeps the ones positioned in [from, to).
func collectRange(items iter.Seq[string], from, to int) []string {
	result := make([]string, 0, to-from)
	position := 0
	for item := range items {
		if position >= to {
			break
		}
		if position >= from {
			result = append(result, item)
		}
		position++
	}
	return result
}

// listRange serves LRANGE and LREVRANGE; `reversed` walks the list from its tail.
func (rh *redisHandler) listRange(args []string, reversed bool) redisOutput {
	start, err := parseInt(args[1])
	if err != nil {
		return writeRedisError(err)
	}
	stop, err := parseInt(args[2])
	if err != nil {
		return writeRedisError(err)
	}
	var items []string
	err = rh.ks.ViewList(args[0], func(list *dlist.List[string]) error {
		from, to := rangeBounds(start, stop, list.Len())
		seq := list.All()
		if reversed {
			seq = list.Backward()
		}
		items = collectRange(seq, from, to)
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisArray(items)
}

// lrange reads items head to tail: LRANGE key start stop.
func (rh *redisHandler) lrange(args []string) redisOutput {
	return rh.listRange(args, false /*reversed*/)
}

// lrevrange reads items tail to head: LREVRANGE key start stop; offsets count from the tail.
func (rh *redisHandler) lrevrange(args []string) redisOutput {
	return rh.listRange(args, true /*reversed*/)
}

func (rh *redisHandler) llen(args []string) redisOutput {
	length := 0
	err := rh.ks.ViewList(args[0], func(list *dlist.List[string]) error {
		length = list.Len()
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisInt(length)
}

// lfind returns the first item matching a glob pattern: LFIND key pattern. Replies nil when nothing matches.
func (rh *redisHandler) lfind(args []string) redisOutput {
	match, err := scan.GlobPredicate(args[1])
	if err != nil {
		return writeRedisError(err)
	}
	var item string
	found := false
	err = rh.ks.ViewList(args[0], func(list *dlist.List[string]) error {
		item, found = list.Find(match)
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	if !found {
		return writeRedisNil()
	}
	return writeRedisBulk(item)
}

// spush pushes items on a stack: SPUSH key item [item ...]. Replies with the new stack size.
func (rh *redisHandler) spush(args []string) redisOutput {
	length := 0
	err := rh.ks.UpdateStack(args[0], true /*create*/, func(s stack.Stack[string]) error {
		for _, item := range args[1:] {
			s.Push(item)
		}
		length = s.Len()
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisInt(length)
}

// spop removes the top of a stack: SPOP key. Replies nil on an empty stack.
func (rh *redisHandler) spop(args []string) redisOutput {
	var item string
	err := rh.ks.UpdateStack(args[0], false /*create*/, func(s stack.Stack[string]) (err error) {
		item, err = s.Pop()
		return err
	})
	if errors.Is(err, keyspace.ErrKeyNotFound) || errors.Is(err, stack.ErrEmptyStack) {
		return writeRedisNil()
	} else if err != nil {
		return writeRedisError(err)
	}
	return writeRedisBulk(item)
}

// speek reads the top of a stack: SPEEK key. Replies nil on an empty stack.
func (rh *redisHandler) speek(args []string) redisOutput {
	var item string
	found := false
	err := rh.ks.ViewStack(args[0], func(s stack.Stack[string]) error {
		item, found = s.Peek()
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	if !found {
		return writeRedisNil()
	}
	return writeRedisBulk(item)
}

func (rh *redisHandler) slen(args []string) redisOutput {
	length := 0
	err := rh.ks.ViewStack(args[0], func(s stack.Stack[string]) error {
		length = s.Len()
		return nil
	})
	if err != nil {
		return writeRedisError(err)
	}
	return writeRedisInt(length)
}
