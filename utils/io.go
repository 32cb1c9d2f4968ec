package utils

import (
	"bufio"
	"io"
	"math"
	"strings"
)

func init() {
	checkCompiler()
}

// Enforces a 64bit machine due to assumptions about size of ints (vertex ids and shares are uint64).
func checkCompiler() {
	myInt := int(math.MaxInt64) // Shouldn't compile on a 32 bit system.
	myInt64 := int64(math.MaxInt64)
	if uint64(myInt) != uint64(myInt64) {
		panic("Must be on 64 bit system.")
	}
}

// Walks the meaningful lines of a text input: blank lines and lines starting with '#' are skipped.
// Each call to fn gets the 1-based line number and the whitespace separated fields of the line.
// Stops at the first error returned by fn.
func EachFieldLine(r io.Reader, fn func(lineNo int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := fn(lineNo, strings.Fields(text)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
