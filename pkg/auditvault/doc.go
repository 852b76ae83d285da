// Package auditvault is the library API of the audit log engine: buffered
// audit writing, indexed search, compressed backups, verification,
// restore and retention, all over one project directory.
//
// # Concurrency Safety
//
//   - A Client may be shared between goroutines. Log, Flush and Search are
//     safe to call concurrently; the writer and index serialise internally.
//
//   - CreateBackup and RestoreBackup are serialised per Client. CreateBackup
//     flushes buffered entries first so the backup contains everything
//     logged before the call.
//
//   - RestoreBackup replaces the live audit directory. Other processes
//     appending to the same directory must be stopped for the duration.
//     The index is rebuilt from the restored logs afterwards.
//
//   - Two Clients on the same project do not coordinate beyond the
//     advisory lock taken while appending to the log.
//
// # Usage
//
//	client, err := auditvault.OpenOrInit(dir, auditvault.Options{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.LogEvent(model.AuditEvent{UserID: "alice", Action: "login"})
//	hits := client.Search(index.Query{User: "alice"})
//
//	stats, err := client.CreateBackup(ctx, nil)
package auditvault
