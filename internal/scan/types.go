// Package scan finds heavy files: files whose estimated token weight
// exceeds a configurable threshold. It is the input side of the deep-clean
// pipeline; classification and moving decisions live elsewhere.
package scan

// Category names the external subtree a relocated file belongs under.
type Category string

const (
	CategoryData    Category = "data"
	CategoryLogs    Category = "logs"
	CategoryVenvs   Category = "venvs"
	CategoryGarbage Category = "garbage"
)

// HeavyFile describes one file over the heaviness threshold. RelPath uses
// forward slashes regardless of host platform.
type HeavyFile struct {
	AbsPath         string
	RelPath         string
	SizeBytes       int64
	EstimatedTokens int64
	Category        Category
}

// Result is the outcome of scanning one project tree.
type Result struct {
	ProjectPath  string
	FilesScanned int
	TotalTokens  int64
	HeavyFiles   []HeavyFile
	SourceFiles  []string // forward-slash relative paths of patchable sources
	Errors       []string
}
