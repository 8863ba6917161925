package vos

import "github.com/spf13/afero"

// VFS is the filesystem view the shell resolves programs and directories
// against.
type VFS = afero.Fs

type VNetwork interface {
	Hostname() (string, error)
}

// PTY describes the terminal the shell is attached to.
type PTY struct {
	Width  int
	Height int
	Term   string
	IsPTY  bool
}

// VOS provides the operating system services the shell depends on.
type VOS interface {
	VNetwork
	VEnv
	VIO
	VProc
	VFS

	// Getwd returns the current working directory.
	Getwd() (string, error)
	// Chdir changes the current working directory.
	Chdir(dir string) error
	// Username returns the name of the user running the shell.
	Username() string

	GetPTY() PTY
}
