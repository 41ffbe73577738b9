package catalogfed

import (
	"os"
	"time"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

// touchFuture moves the modification time forward so a polling watcher sees
// the change even on coarse filesystem clocks.
func touchFuture(path string) error {
	future := time.Now().Add(2 * time.Second)
	return os.Chtimes(path, future, future)
}
