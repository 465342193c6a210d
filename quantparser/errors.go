package quantparser

import "fmt"

// ConfigError reports a (tool, version) pair, or a unit, that no layout
// supports. It is raised before any sample is read.
type ConfigError struct {
	Tool    string
	Version string
	Unit    Unit
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("unit %s is not available for %s: %s", e.Unit, Key{e.Tool, e.Version}, e.Reason)
	}
	return fmt.Sprintf("unsupported tool and version %s: %s", Key{e.Tool, e.Version}, e.Reason)
}

// MissingFileError reports that a file a sample needs does not exist. It
// unwraps to fs.ErrNotExist.
type MissingFileError struct {
	Path string
	Err  error
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("could not find file: %s", e.Path)
}

func (e *MissingFileError) Unwrap() error {
	return e.Err
}

// MalformedRecordError reports a file that exists but cannot be parsed.
type MalformedRecordError struct {
	Path string
	Line int // 0 when not tied to a line
	Err  error
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: malformed record: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: malformed record: %v", e.Path, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}
