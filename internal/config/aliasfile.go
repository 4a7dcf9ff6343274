package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/brinkfs/nfsd/internal/alias"
)

// ParseAliasFile reads a path-list file: UTF-8 text, one alias per
// line, '#' begins a comment, leading/trailing whitespace trimmed.
// Each non-comment line is "alias_path host_path", split on the first
// run of whitespace so a host path may itself contain spaces. A line
// with only an alias_path (no host path) is rejected.
func ParseAliasFile(path string) ([]alias.Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var mappings []alias.Mapping
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexFunc(line, func(r rune) bool { return r == ' ' || r == '\t' })
		if idx < 0 {
			return nil, fmt.Errorf("%s:%d: missing host path", path, lineNo)
		}
		aliasPath := line[:idx]
		hostPath := strings.TrimSpace(line[idx:])
		if hostPath == "" {
			return nil, fmt.Errorf("%s:%d: missing host path", path, lineNo)
		}

		mappings = append(mappings, alias.Mapping{AliasPath: aliasPath, HostPath: hostPath})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return mappings, nil
}
