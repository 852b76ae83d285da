// Package pathutil validates identifiers that become path components.
package pathutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/auditvault/auditvault/pkg/errclass"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateBackupID checks that id is safe to join under the backup root:
// NFC-normalised, no separators, no "..", no control characters.
func ValidateBackupID(id string) error {
	if id == "" {
		return errclass.ErrNameInvalid.WithMessage("backup id must not be empty")
	}
	if !norm.NFC.IsNormalString(id) {
		return errclass.ErrNameInvalid.WithMessagef("backup id must be NFC normalised: %q", id)
	}
	if strings.Contains(id, "..") {
		return errclass.ErrNameInvalid.WithMessagef("backup id must not contain '..': %s", id)
	}
	if strings.ContainsAny(id, `/\`) {
		return errclass.ErrNameInvalid.WithMessagef("backup id must not contain separators: %s", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("backup id must not contain control characters: %q", id)
		}
	}
	if !idRegex.MatchString(id) {
		return errclass.ErrNameInvalid.WithMessagef("backup id must match [a-zA-Z0-9._-]+: %s", id)
	}
	return nil
}

// NormalizeKey folds an index key to NFC and trims surrounding space so that
// composed and decomposed spellings of the same identifier match.
func NormalizeKey(key string) string {
	return norm.NFC.String(strings.TrimSpace(key))
}
