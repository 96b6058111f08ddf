//go:build !windows

package strengthen

import "os"

// FinalizeObject publishes a completed temp file at newpath, making the
// write atomic and visible to readers in one step. oldpath must be on the
// same filesystem as newpath (both under the same repository root) so the
// rename is a metadata-only operation.
func FinalizeObject(oldpath string, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		if os.IsExist(err) {
			_ = os.Remove(oldpath)
			return nil
		}
		return err
	}
	return nil
}
