package database

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns a LIKE/ILIKE pattern matching s anywhere, with the
// wildcards in s taken literally.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
