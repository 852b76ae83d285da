// Command auditvault manages tamper-evident audit logs and their backups.
package main

import "github.com/auditvault/auditvault/internal/cli"

func main() {
	cli.Execute()
}
