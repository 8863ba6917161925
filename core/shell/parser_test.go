package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLookup(name string) string {
	return map[string]string{
		"HOME":  "/home/user",
		"NAME":  "world",
		"SPACY": "a b",
		"QUOTE": `say "hi"`,
		"?":     "3",
	}[name]
}

func TestParse(t *testing.T) {
	cases := map[string]struct {
		line string
		want []string
	}{
		"empty":               {line: "", want: []string{}},
		"whitespace":          {line: " \t ", want: []string{}},
		"simple":              {line: "ls -l /tmp", want: []string{"ls", "-l", "/tmp"}},
		"double quotes":       {line: `echo "a  b"`, want: []string{"echo", "a  b"}},
		"single quotes":       {line: `echo 'a  b'`, want: []string{"echo", "a  b"}},
		"escaped space":       {line: `echo a\ b`, want: []string{"echo", "a b"}},
		"comment":             {line: "echo hi # there", want: []string{"echo", "hi"}},
		"comment only":        {line: "# nothing", want: []string{}},
		"hash inside word":    {line: "echo a#b", want: []string{"echo", "a#b"}},
		"hash quoted":         {line: `echo "# not a comment"`, want: []string{"echo", "# not a comment"}},
		"variable":            {line: "echo $NAME", want: []string{"echo", "world"}},
		"braced variable":     {line: "echo ${NAME}s", want: []string{"echo", "worlds"}},
		"last status":         {line: "echo $?", want: []string{"echo", "3"}},
		"missing variable":    {line: "echo x$MISSING", want: []string{"echo", "x"}},
		"unquoted splits":     {line: "echo $SPACY", want: []string{"echo", "a", "b"}},
		"double quoted keeps": {line: `echo "$SPACY"`, want: []string{"echo", "a b"}},
		"single quoted":       {line: `echo '$NAME'`, want: []string{"echo", "$NAME"}},
		"quotes in value":     {line: `echo "$QUOTE"`, want: []string{"echo", `say "hi"`}},
		"lone dollar":         {line: "echo $ 5", want: []string{"echo", "$", "5"}},
		"tilde":               {line: "cd ~", want: []string{"cd", "/home/user"}},
		"tilde path":          {line: "ls ~/src", want: []string{"ls", "/home/user/src"}},
		"tilde user":          {line: "ls ~root", want: []string{"ls", "~root"}},
		"tilde mid word":      {line: "echo a~", want: []string{"echo", "a~"}},
		"background":          {line: "sleep 5 &", want: []string{"sleep", "5", "&"}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Parse(tc.line, testLookup)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	for _, line := range []string{`echo "unterminated`, `echo 'open`, `echo \`} {
		_, err := Parse(line, testLookup)
		assert.ErrorIs(t, err, ErrSyntax, "line %q", line)
	}
}

func TestParse_NilLookup(t *testing.T) {
	got, err := Parse("echo $HOME ~", nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"echo", "~"}, got)
}

func TestParseLine(t *testing.T) {
	cases := map[string]struct {
		line           string
		want           []string
		wantBackground bool
		wantErr        bool
	}{
		"none":              {line: "", want: []string{}},
		"no marker":         {line: "ls -l", want: []string{"ls", "-l"}},
		"marker":            {line: "sleep 5 &", want: []string{"sleep", "5"}, wantBackground: true},
		"trailing space":    {line: "sleep 5 &  ", want: []string{"sleep", "5"}, wantBackground: true},
		"attached":          {line: "sleep 5&", want: []string{"sleep", "5"}, wantBackground: true},
		"comment":           {line: "sleep 5 & # later", want: []string{"sleep", "5"}, wantBackground: true},
		"only":              {line: "&", want: []string{}, wantBackground: true},
		"middle":            {line: "a & b", want: []string{"a", "&", "b"}},
		"single quoted":     {line: "echo 'fish&'", want: []string{"echo", "fish&"}},
		"double quoted":     {line: `echo "&"`, want: []string{"echo", "&"}},
		"escaped":           {line: `echo \&`, want: []string{"echo", "&"}},
		"escaped backslash": {line: `echo \\&`, want: []string{"echo", `\`}, wantBackground: true},
		"quoted then bg":    {line: `echo "a&" &`, want: []string{"echo", "a&"}, wantBackground: true},
		"variable":          {line: "echo $AMP", want: []string{"echo", "x&"}},
		"unterminated":      {line: "echo 'a &", wantErr: true},
	}

	lookup := func(name string) string {
		if name == "AMP" {
			return "x&"
		}
		return testLookup(name)
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, background, err := ParseLine(tc.line, lookup)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrSyntax)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantBackground, background)
		})
	}
}
