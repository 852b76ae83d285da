package pathutil

import (
	"path/filepath"
	"strings"
	"testing"
)

func FuzzValidateBackupID(f *testing.F) {
	f.Add("")
	f.Add("audit_backup_1700000000")
	f.Add("pre_restore_1700000000-2")
	f.Add("..")
	f.Add("../escape")
	f.Add(`a\b`)
	f.Add("name\x00null")
	f.Add("café")

	f.Fuzz(func(t *testing.T, id string) {
		if ValidateBackupID(id) != nil {
			return
		}
		if filepath.Base(id) != id || strings.Contains(id, "..") {
			t.Fatalf("accepted id %q escapes its directory", id)
		}
	})
}
