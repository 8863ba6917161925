package vos_test

import (
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/josephlewis42/jobsh/core/vos"
	"github.com/josephlewis42/jobsh/core/vos/vostest"
)

func TestLookPath(t *testing.T) {
	testOS := vostest.NewTestOS()
	testOS.AddExecutable("/usr/bin/tool")
	testOS.AddExecutable("/home/user/script.sh")
	_ = afero.WriteFile(testOS.Fs, "/bin/readme", []byte("text"), 0644)

	cases := map[string]struct {
		file    string
		want    string
		wantErr error
	}{
		"path search": {
			file: "sleep",
			want: "/bin/sleep",
		},
		"earlier path entry wins": {
			file: "tool",
			want: "/usr/bin/tool",
		},
		"relative with slash": {
			file: "./script.sh",
			want: "./script.sh",
		},
		"missing": {
			file:    "nope",
			wantErr: vos.ErrNotFound,
		},
		"missing with slash": {
			file:    "/opt/nope",
			wantErr: vos.ErrNotFound,
		},
		"not executable": {
			file:    "readme",
			wantErr: fs.ErrPermission,
		},
		"directory": {
			file:    "/tmp",
			wantErr: fs.ErrPermission,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := vos.LookPath(testOS, tc.file)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProcStatus_ExitCode(t *testing.T) {
	assert.Equal(t, 0, vos.ProcStatus{State: vos.ProcExited}.ExitCode())
	assert.Equal(t, 7, vos.ProcStatus{State: vos.ProcExited, Code: 7}.ExitCode())
	assert.Equal(t, 130, vos.ProcStatus{State: vos.ProcSignaled, Code: 2}.ExitCode())
	assert.Equal(t, 127, vos.ProcStatus{State: vos.ProcNotFound}.ExitCode())
	assert.Equal(t, "signal 9", vos.ProcStatus{State: vos.ProcSignaled, Code: 9}.String())
}
