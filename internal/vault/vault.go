// Package vault stores metadata backups in memory, on disk or in S3.
package vault

import (
	"fmt"
	"strings"
)

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid object name: %q", name)
	}
	return nil
}

func checkSize(want int64, got int) error {
	if int64(got) != want {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", want, got)
	}
	return nil
}
