package journal

import (
	"bufio"
	"io"
	"sort"
)

func sortStrings(s []string) { sort.Strings(s) }

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return scanner
}
