package bundle

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureReader(t *testing.T) CommitReader {
	t.Helper()
	commits := map[string]struct {
		parents []string
		tz      int
		message string
	}{
		"1111111111111111111111111111111111111111": {nil, 0, "root"},
		"2222222222222222222222222222222222222222": {[]string{"1111111111111111111111111111111111111111"}, -7200, "second"},
	}
	return func(rev string) (string, int64, int, []string, string, error) {
		c, ok := commits[rev]
		require.True(t, ok, "unknown fixture rev %s", rev)
		return "Ada Lovelace <ada@example.com>", 1000000000, c.tz, c.parents, c.message, nil
	}
}

func TestWriteBundle_HeaderAndFooter(t *testing.T) {
	var buf bytes.Buffer
	revs := []string{
		"1111111111111111111111111111111111111111",
		"2222222222222222222222222222222222222222",
	}
	revBranch := map[string]string{
		"1111111111111111111111111111111111111111": "master",
		"2222222222222222222222222222222222222222": "master",
	}

	err := WriteBundle(&buf, revs, revBranch, fixtureReader(t))
	require.NoError(t, err)

	out := buf.Bytes()
	require.True(t, len(out) >= 6+12)
	assert.Equal(t, []byte("HG10UN"), out[:6])
	assert.Equal(t, make([]byte, 12), out[len(out)-12:])
}

func TestWriteBundle_FirstChunkLength(t *testing.T) {
	var buf bytes.Buffer
	revs := []string{"1111111111111111111111111111111111111111"}
	revBranch := map[string]string{revs[0]: "master"}

	require.NoError(t, WriteBundle(&buf, revs, revBranch, fixtureReader(t)))

	out := buf.Bytes()
	firstLen := binary.BigEndian.Uint32(out[6:10])

	changelog := changelogText("Ada Lovelace <ada@example.com>", 1000000000, 0, "master", "[11111111] root")
	// payload = node + p1 + p2 + node (20 bytes each) + revdata header (12) + changelog;
	// the stored length additionally counts the 4-byte length field itself.
	want := uint32(4*20 + 12 + len(changelog) + 4)
	assert.Equal(t, want, firstLen)
}

func TestWriteBundle_NoParents_UsesNullID(t *testing.T) {
	var buf bytes.Buffer
	revs := []string{"1111111111111111111111111111111111111111"}
	revBranch := map[string]string{revs[0]: "master"}
	require.NoError(t, WriteBundle(&buf, revs, revBranch, fixtureReader(t)))

	out := buf.Bytes()
	// payload starts right after the 4-byte chunk length.
	payload := out[10:]
	node := payload[0:20]
	p1 := payload[20:40]
	p2 := payload[40:60]
	assert.Equal(t, nullID, p1)
	assert.Equal(t, nullID, p2)
	assert.NotEqual(t, nullID, node)
}

func TestHashRevision_OrderIndependent(t *testing.T) {
	changelog := []byte("some changelog text")
	p1 := bytes.Repeat([]byte{0xaa}, 20)
	p2 := bytes.Repeat([]byte{0xbb}, 20)

	a := hashRevision(changelog, p1, p2)
	b := hashRevision(changelog, p2, p1)
	assert.Equal(t, a, b)
}

func TestChangelogText_MasterAndDefaultOmitBranchField(t *testing.T) {
	for _, branch := range []string{"default", "master"} {
		text := changelogText("author", 100, 0, branch, "msg")
		assert.NotContains(t, string(text), "branch:")
	}

	text := changelogText("author", 100, 0, "feature", "msg")
	assert.Contains(t, string(text), "branch:feature")
}

func TestChangelogText_TimezoneNegation(t *testing.T) {
	text := changelogText("author", 100, 0, "master", "msg")
	assert.Contains(t, string(text), "100 0\n")

	text2 := changelogText("author", 100, -7200, "master", "msg")
	assert.Contains(t, string(text2), "100 7200\n")

	text3 := changelogText("author", 100, 3600, "master", "msg")
	assert.Contains(t, string(text3), "100 -3600\n")
}
