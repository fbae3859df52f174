package settings

const (
	CmdName = "xexport"

	// OutputSuffix is appended to the input path to name the written
	// shared object.
	OutputSuffix = ".so"
)
