package bundle

import "fmt"

// FormatError indicates that a file does not look like an FMB container:
// unrecognised magic, an impossible directory, or a stored payload whose
// checksum does not match the directory entry.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: invalid bundle: %s", e.Path, e.Reason)
}

// TruncatedError indicates that the directory declares more data than the
// file actually contains.
type TruncatedError struct {
	Path     string
	Entry    string
	Declared int64
	Actual   int64
}

func (e *TruncatedError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("%s: entry %q declares %d bytes past end of file (file is %d bytes)",
			e.Path, e.Entry, e.Declared, e.Actual)
	}
	return fmt.Sprintf("%s: truncated bundle: need %d bytes, have %d", e.Path, e.Declared, e.Actual)
}

// EntryNotFoundError indicates a lookup for a name the directory does not
// contain.
type EntryNotFoundError struct {
	Path string
	Name string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("%s: no entry named %q", e.Path, e.Name)
}
