package state

import "fmt"

func etagFor(rev uint64) string {
	return fmt.Sprintf(`W/"%d"`, rev)
}

func volumeID(seq int) string {
	return fmt.Sprintf("Volume%d", seq)
}
