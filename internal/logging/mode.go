package logging

type Mode uint8

const (
	ModeCLI Mode = iota + 1
	ModeDaemon
)

func (m Mode) String() string {
	switch m {
	case ModeDaemon:
		return "daemon"
	default:
		return "cli"
	}
}
