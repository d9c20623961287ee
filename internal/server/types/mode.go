package types

// Mode selects how the manager runs: debug favors human-readable
// output, release favors structured export.
type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

func (m Mode) IsRelease() bool { return m == ModeRelease }
