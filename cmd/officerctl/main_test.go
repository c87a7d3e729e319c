package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/httpserver"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleReport = "# OFFICER ADJUDICATION REPORT: EB-1A\n\n| **TOTAL** | | **74/100** |\n\nTier 1 | 6\n"

func TestParseCommand(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "report.md", sampleReport)
	xlsx := filepath.Join(t.TempDir(), "card.xlsx")

	out, err := execute(t, "", "parse", "--visa", "eb-1a", "--file", path, "--with-source", "--xlsx", xlsx)
	require.NoError(t, err)

	var got struct {
		ScoreSource string         `json:"scoreSource"`
		Report      map[string]any `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "total_row", got.ScoreSource)
	assert.Equal(t, float64(74), got.Report["overallScore"])
	assert.Len(t, got.Report["criteriaScores"], 10)

	data, err := os.ReadFile(xlsx)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}

func TestParseCommand_Stdin(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "**Overall Score:** 58/100\n", "parse", "--visa", "O-1A", "--file", "-")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, float64(58), got["overallScore"])
}

func TestParseCommand_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing flags", []string{"parse"}, "required flag"},
		{"unknown visa", []string{"parse", "--visa", "H-1B", "--file", "-"}, "H-1B"},
		{"missing file", []string{"parse", "--visa", "O-1A", "--file", "/nonexistent/report.md"}, "failed to read input file"},
		{"bad catalog", []string{"visas", "--catalog", "/nonexistent/visas.yaml"}, "failed to read catalog"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			_, err := execute(t, "", c.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestVisasCommand(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "", "visas")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "CODE"))
	assert.True(t, strings.HasPrefix(lines[1], "O-1A"))

	out, err = execute(t, "", "visas", "--json")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 5)
	assert.Equal(t, "O-1A", list[0]["code"])
}

func TestVisasCommand_CustomCatalog(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "visas.yaml", `visas:
  - code: TEST-1
    title: Test Visa
    regulation: none
    min_required: 1
    criteria:
      - number: 1
        name: Anything
`)
	out, err := execute(t, "", "visas", "--json", "--catalog", path)
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "TEST-1", list[0]["code"])
}

func TestPromptCommand(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "petition.txt", "Dr. Rivera led the lab that published the reference dataset.")

	out, err := execute(t, "", "prompt", "--visa", "EB-1A", "--file", path, "--part", "user")
	require.NoError(t, err)
	assert.Contains(t, out, "EB-1A")
	assert.Contains(t, out, "Dr. Rivera led the lab")
	assert.NotContains(t, out, "truncated to fit the review budget")

	long := strings.Repeat("The beneficiary authored many widely cited papers. ", 200)
	out, err = execute(t, long, "prompt", "--visa", "EB-1A", "--file", "-", "--part", "user", "--max-tokens", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "truncated to fit the review budget")

	_, err = execute(t, "", "prompt", "--visa", "EB-1A", "--file", path, "--part", "all")
	require.Error(t, err)
}

func TestHashPasswordCommand(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "s3cret-pass\n", "hash-password")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, httpserver.VerifyPassword("s3cret-pass", hash))
	assert.False(t, httpserver.VerifyPassword("other", hash))

	_, err = execute(t, "\n", "hash-password")
	assert.Error(t, err)
}
