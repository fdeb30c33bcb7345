// twine speaks the Redis protocol (RESP) so lists and stacks can be driven from any Redis client.
// Command parsing and dispatch live here; the command semantics live in commands.go.

package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nobletooth/twine/pkg/keyspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var (
	address     = flag.String("address", ":6390", "The ip:port to listen on for Redis protocol.")
	idleTimeout = flag.Duration("idle_timeout", 0, "Close client connections idle for this long; 0 disables it.")

	commandsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "twine",
		Name:      "commands_total",
		Help:      "The total number of handled Redis commands.",
	}, []string{"command", "status" /* ok | error */})
)

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string // Upper-cased command name.
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
// At most one of the write fields is set; a zero output writes an empty simple string.
type redisOutput struct {
	closeConnection bool      // Closes the connection after writing if true.
	writeNil        bool      // Writes a nil value if true.
	err             *string   // Error to return if set.
	writeInt        *int      // Writes an integer value if set.
	writeBulk       *string   // Writes a bulk string if set.
	writeArray      *[]string // Writes an array of bulk strings if set.
	writeString     string    // Writes a simple string otherwise.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisBulk(s string) redisOutput {
	return redisOutput{writeBulk: &s}
}

func writeRedisArray(items []string) redisOutput {
	if items == nil {
		items = []string{}
	}
	return redisOutput{writeArray: &items}
}

func writeRedisError(err error) redisOutput {
	msg := err.Error()
	if !errors.Is(err, keyspace.ErrWrongType) { // WRONGTYPE replies carry their own prefix.
		msg = "ERR " + msg
	}
	return redisOutput{err: &msg}
}

func wrongArity(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

// isError reports whether the output is an error reply.
func (o redisOutput) isError() bool {
	return o.err != nil
}

// writeTo serializes the output on the given connection.
func (o redisOutput) writeTo(conn redcon.Conn) {
	switch {
	case o.err != nil:
		conn.WriteError(*o.err)
	case o.writeNil:
		conn.WriteNull()
	case o.writeInt != nil:
		conn.WriteInt(*o.writeInt)
	case o.writeBulk != nil:
		conn.WriteBulkString(*o.writeBulk)
	case o.writeArray != nil:
		conn.WriteArray(len(*o.writeArray))
		for _, item := range *o.writeArray {
			conn.WriteBulkString(item)
		}
	default:
		conn.WriteString(o.writeString)
	}
}

// commandSpec describes how to run a command; arity counts arguments after the command name.
type commandSpec struct {
	minArgs, maxArgs int // maxArgs < 0 means unbounded.
	run              func(rh *redisHandler, args []string) redisOutput
}

var commandTable = map[string]commandSpec{
	"PING":      {minArgs: 0, maxArgs: 1, run: (*redisHandler).ping},
	"QUIT":      {minArgs: 0, maxArgs: 0, run: func(*redisHandler, []string) redisOutput { return closeRedisConnection(RedisOk) }},
	"DEL":       {minArgs: 1, maxArgs: -1, run: (*redisHandler).del},
	"EXISTS":    {minArgs: 1, maxArgs: -1, run: (*redisHandler).exists},
	"TYPE":      {minArgs: 1, maxArgs: 1, run: (*redisHandler).keyType},
	"KEYS":      {minArgs: 1, maxArgs: 1, run: (*redisHandler).keys},
	"DBSIZE":    {minArgs: 0, maxArgs: 0, run: (*redisHandler).dbSize},
	"FLUSHALL":  {minArgs: 0, maxArgs: 0, run: (*redisHandler).flushAll},
	"FLUSHDB":   {minArgs: 0, maxArgs: 0, run: (*redisHandler).flushAll},
	"RPUSH":     {minArgs: 2, maxArgs: -1, run: (*redisHandler).rpush},
	"LPUSH":     {minArgs: 2, maxArgs: -1, run: (*redisHandler).lpush},
	"LINDEX":    {minArgs: 2, maxArgs: 2, run: (*redisHandler).lindex},
	"LINSERTAT": {minArgs: 3, maxArgs: 3, run: (*redisHandler).linsertAt},
	"LREPLACE":  {minArgs: 3, maxArgs: 3, run: (*redisHandler).lreplace},
	"LREM":      {minArgs: 3, maxArgs: 3, run: (*redisHandler).lrem},
	"LRANGE":    {minArgs: 3, maxArgs: 3, run: (*redisHandler).lrange},
	"LREVRANGE": {minArgs: 3, maxArgs: 3, run: (*redisHandler).lrevrange},
	"LLEN":      {minArgs: 1, maxArgs: 1, run: (*redisHandler).llen},
	"LFIND":     {minArgs: 2, maxArgs: 2, run: (*redisHandler).lfind},
	"SPUSH":     {minArgs: 2, maxArgs: -1, run: (*redisHandler).spush},
	"SPOP":      {minArgs: 1, maxArgs: 1, run: (*redisHandler).spop},
	"SPEEK":     {minArgs: 1, maxArgs: 1, run: (*redisHandler).speek},
	"SLEN":      {minArgs: 1, maxArgs: 1, run: (*redisHandler).slen},
}

type redisHandler struct {
	ks *keyspace.Keyspace
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(ks *keyspace.Keyspace) (*redisHandler, error) {
	if ks == nil {
		return nil, errors.New("expected a non-nil keyspace")
	}
	return &redisHandler{ks: ks}, nil
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	spec, known := commandTable[cmd.command]
	if !known {
		commandsMetric.WithLabelValues("unknown", "error").Inc()
		return writeRedisError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
	var output redisOutput
	if len(cmd.args) < spec.minArgs || (spec.maxArgs >= 0 && len(cmd.args) > spec.maxArgs) {
		output = wrongArity(cmd.command)
	} else {
		output = spec.run(rh, cmd.args)
	}
	status := "ok"
	if output.isError() {
		status = "error"
	}
	commandsMetric.WithLabelValues(cmd.command, status).Inc()
	return output
}

// toRedisCommand converts a redcon.Command to a redisCommand.
func toRedisCommand(cmd redcon.Command) redisCommand {
	command := redisCommand{command: strings.ToUpper(string(cmd.Args[0])), args: make([]string, len(cmd.Args)-1)}
	for i := 1; i < len(cmd.Args); i++ {
		command.args[i-1] = string(cmd.Args[i])
	}
	return command
}

// RunRedisServer starts a Redis protocol server serving the given keyspace until `ctx` is done.
func RunRedisServer(ctx context.Context, ks *keyspace.Keyspace) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}

	redisHandler, err := newRedisHandler(ks)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			output := redisHandler.handle(toRedisCommand(cmd))
			output.writeTo(conn)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close connection.", "remote", conn.RemoteAddr(), "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			slog.Debug("Accepted connection.", "remote", conn.RemoteAddr())
			return true // Accept all connections.
		},
		/*close*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})
	if *idleTimeout > 0 {
		redisServer.SetIdleClose(*idleTimeout)
	}

	listening := make(chan error, 1)
	serverErrSignal := make(chan error, 1)
	go func() {
		if err := redisServer.ListenServeAndSignal(listening); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()
	if err := <-listening; err != nil {
		return fmt.Errorf("failed to listen on %s: %w", *address, err)
	}
	slog.Info("Redis server is listening.", "address", *address, "idleTimeout", idleTimeout.String())

	select {
	case <-ctx.Done():
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close twine: %w", err)
		}
		// Wait for the serving goroutine to exit so callers can reuse the address right away.
		select {
		case <-serverErrSignal:
		case <-closeCtx.Done():
			slog.Warn("Redis server didn't stop in time.")
		}
	case err := <-serverErrSignal:
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
