package outbox

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxPrefixLength bounds the table prefix taken from configuration.
const MaxPrefixLength = 8

var prefixRegexp = regexp.MustCompile(`^[A-Za-z_]+$`)

var reservedWords = map[string]struct{}{
	"SELECT": {}, "INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "CREATE": {}, "ALTER": {},
	"EXEC": {}, "EXECUTE": {}, "DECLARE": {}, "SET": {}, "BEGIN": {}, "END": {}, "TRANSACTION": {},
	"COMMIT": {}, "ROLLBACK": {}, "TRUNCATE": {}, "GRANT": {}, "REVOKE": {}, "DENY": {},
	"BACKUP": {}, "RESTORE": {}, "SHUTDOWN": {}, "KILL": {}, "TABLE": {}, "DATABASE": {},
	"SCHEMA": {}, "INDEX": {}, "VIEW": {}, "PROCEDURE": {}, "FUNCTION": {}, "TRIGGER": {},
	"USER": {}, "LOGIN": {}, "ROLE": {}, "PARTITION": {}, "CONSTRAINT": {},
}

// ValidatePrefix checks a configuration-driven table prefix before it is spliced into SQL.
// The prefix must be made of letters and underscores only, be at most MaxPrefixLength
// characters long and must not be a reserved keyword (case-insensitive).
func ValidatePrefix(prefix string) error {
	if strings.TrimSpace(prefix) == "" {
		return fmt.Errorf("%w: prefix cannot be empty", ErrInvalidIdentifier)
	}
	if !prefixRegexp.MatchString(prefix) {
		return fmt.Errorf("%w: prefix %q must match [A-Za-z_]+", ErrInvalidIdentifier, prefix)
	}
	if len(prefix) > MaxPrefixLength {
		return fmt.Errorf("%w: prefix %q exceeds %d characters", ErrInvalidIdentifier, prefix, MaxPrefixLength)
	}
	if _, reserved := reservedWords[strings.ToUpper(prefix)]; reserved {
		return fmt.Errorf("%w: prefix %q is a reserved word", ErrInvalidIdentifier, prefix)
	}
	return nil
}

// TableName returns the unquoted outbox table name for a prefix.
func TableName(prefix string) string {
	return strings.ToUpper(prefix) + "_OUTBOX_MESSAGES"
}
