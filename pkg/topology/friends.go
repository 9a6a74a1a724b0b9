package topology

import (
	"bufio"
	"log"
	"os"
	"strings"

	"github.com/atvirokodosprendimai/gnsmesh/pkg/crypto"
	"github.com/atvirokodosprendimai/gnsmesh/pkg/gnserr"
)

// ParseFriendsFile reads a whitespace-separated list of peer-identity
// ASCII tokens. A token that fails to parse as a zone-id is
// skipped with a logged offset rather than aborting the parse. A missing
// or empty file yields an empty, non-error result; an unreadable file
// (permission denied, not a regular file) is an error.
func ParseFriendsFile(path string) (map[string]bool, error) {
	const op = "topology.ParseFriendsFile"

	friends := make(map[string]bool)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return friends, nil
	}
	if err != nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	offset := 0
	for scanner.Scan() {
		line := scanner.Text()
		for _, tok := range strings.Fields(line) {
			if _, err := crypto.ParseZoneIDBase32(tok); err != nil {
				log.Printf("%s: skipping malformed peer id at offset %d: %v", op, offset, err)
				offset += len(tok)
				continue
			}
			friends[tok] = true
			offset += len(tok)
		}
		offset += len(line) + 1
	}
	if err := scanner.Err(); err != nil {
		return nil, gnserr.New(gnserr.KindConfigurationInvalid, op, err)
	}
	return friends, nil
}
