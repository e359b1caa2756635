package engine

import (
	"fmt"
	"strconv"
	"strings"
)

const crlf = "\r\n"

// EncodeStore frames a set/add/replace/append/prepend command. casUnique is
// only used when verb is VerbCas.
func EncodeStore(verb Verb, key string, flags uint32, exptime int, data []byte, casUnique uint64) []byte {
	var b strings.Builder
	b.WriteString(string(verb))
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(uint64(flags), 10))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(exptime))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(len(data)))
	if verb == VerbCas {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(casUnique, 10))
	}
	b.WriteString(crlf)
	b.Write(data)
	b.WriteString(crlf)
	return []byte(b.String())
}

// EncodeGet frames a multi-key get (or gets, when withCAS is true).
func EncodeGet(keys []string, withCAS bool) []byte {
	var b strings.Builder
	if withCAS {
		b.WriteString("gets")
	} else {
		b.WriteString("get")
	}
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
	}
	b.WriteString(crlf)
	return []byte(b.String())
}

// EncodeArith frames an incr/decr command.
func EncodeArith(incr bool, key string, delta uint64) []byte {
	verb := "incr"
	if !incr {
		verb = "decr"
	}
	return []byte(fmt.Sprintf("%s %s %d%s", verb, key, delta, crlf))
}

// EncodeDelete frames a delete command.
func EncodeDelete(key string) []byte {
	return []byte(fmt.Sprintf("delete %s%s", key, crlf))
}

// EncodeTouch frames a touch command (bump TTL without fetching the value).
func EncodeTouch(key string, exptime int) []byte {
	return []byte(fmt.Sprintf("touch %s %d%s", key, exptime, crlf))
}

// EncodeFlushAll frames a flush_all command with the given delay in
// seconds.
func EncodeFlushAll(delaySeconds int) []byte {
	return []byte(fmt.Sprintf("flush_all %d%s", delaySeconds, crlf))
}

// EncodeVersion frames a version command.
func EncodeVersion() []byte {
	return []byte("version" + crlf)
}
