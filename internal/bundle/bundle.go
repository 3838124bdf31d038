// Package bundle serializes a topologically ordered sequence of
// revisions into a metadata-only, Mercurial-style changelog-group
// bundle: enough for another tool to unbundle and visualize or import
// the branch labeling this module recovers, with no manifest or
// filelist content.
package bundle

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/anton-dovnar/revbranch/internal/revid"
)

// header is the 6-byte literal that opens every bundle this writer
// produces: an uncompressed ("UN") Mercurial changelog-group bundle.
const header = "HG10UN"

// nullID is the 20-byte sentinel for "no parent".
var nullID = make([]byte, 20)

// CommitReader resolves a single revision's metadata: author identity,
// author time in UNIX seconds, author timezone in seconds east of UTC,
// parent revision ids (primary first), and the raw commit message.
type CommitReader func(rev string) (author string, authorTime int64, authorTimezone int, parents []string, message string, err error)

// WriteBundle writes revs, in the given topological order, to sink as
// a metadata-only changelog-group bundle. revBranch must have an entry
// for every revision in revs.
func WriteBundle(sink io.Writer, revs []string, revBranch map[string]string, read CommitReader) error {
	if _, err := io.WriteString(sink, header); err != nil {
		return fmt.Errorf("write bundle header: %w", err)
	}

	// gitToNode tracks, for every revision already written, the bundle
	// node id this writer assigned it. A revision's own node is a
	// SHA-1 chain over its *parents' bundle node ids* (not their git
	// hashes) — mirroring how mercurial's changelog itself chains each
	// entry's identity to its parents' identities. revs being
	// topologically sorted guarantees every parent is already present
	// here by the time its child is processed.
	gitToNode := make(map[string][]byte, len(revs))

	var lastChangelog []byte
	for _, rev := range revs {
		branch, ok := revBranch[rev]
		if !ok {
			return fmt.Errorf("no branch assigned for revision %s", rev)
		}

		chunk, changelog, node, err := buildChunk(rev, branch, len(lastChangelog), gitToNode, read)
		if err != nil {
			return err
		}
		if _, err := sink.Write(chunk); err != nil {
			return fmt.Errorf("write chunk for %s: %w", rev, err)
		}
		gitToNode[rev] = node
		lastChangelog = changelog
	}

	// Three empty chunks: end the changelog group, then the (always
	// empty) manifest group, then the (always empty) filelist group.
	for i := 0; i < 3; i++ {
		if _, err := sink.Write(make([]byte, 4)); err != nil {
			return fmt.Errorf("write group terminator: %w", err)
		}
	}
	return nil
}

// changelogText builds the textual changelog entry mercurial.changelog
// would itself construct: an empty manifest reference, the author
// identity, the date field (with an optional branch annotation), a
// blank line, and the message.
func changelogText(author string, authorTime int64, authorTimezone int, branch, message string) []byte {
	manifestHex := bytes.Repeat([]byte{'0'}, 40)

	date := fmt.Sprintf("%d %d", authorTime, -authorTimezone)
	if branch != "default" && branch != "master" {
		date += " branch:" + branch
	}

	parts := [][]byte{manifestHex, []byte(author), []byte(date), nil, []byte(message)}
	return bytes.Join(parts, []byte{'\n'})
}

// hashRevision computes the 20-byte node identity: SHA-1 of the two
// parent ids in sorted order, followed by the changelog text. Sorting
// the parents first makes node derivation independent of which one a
// source commit happened to record as "first".
func hashRevision(changelog []byte, p1, p2 []byte) []byte {
	a, b := p1, p2
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	h := sha1.New()
	h.Write(a)
	h.Write(b)
	h.Write(changelog)
	return h.Sum(nil)
}

func chunk(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)+4))
	copy(out[4:], payload)
	return out
}

// revData frames the changelog text the way an unbundler expects to
// apply it: replace bytes [0, lastLen) of the rolling changelog state
// with the newly supplied text. This bundle never carries more than
// one revision's worth of replacement state at a time, so the "start"
// field is always 0.
func revData(changelog []byte, lastLen int) []byte {
	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:4], 0)
	binary.BigEndian.PutUint32(header[4:8], uint32(lastLen))
	binary.BigEndian.PutUint32(header[8:12], uint32(len(changelog)))
	return append(header, changelog...)
}

func buildChunk(
	rev, branch string,
	lastChangelogLen int,
	gitToNode map[string][]byte,
	read CommitReader,
) (chunkBytes []byte, changelog []byte, node []byte, err error) {
	if err := revid.Validate(rev); err != nil {
		return nil, nil, nil, err
	}

	author, authorTime, authorTimezone, parents, message, err := read(rev)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve commit %s: %w", rev, err)
	}

	short := rev[:8]
	fullMessage := fmt.Sprintf("[%s] %s", short, message)
	changelog = changelogText(author, authorTime, authorTimezone, branch, fullMessage)

	p1 := nullID
	if len(parents) > 0 {
		p, ok := gitToNode[parents[0]]
		if !ok {
			return nil, nil, nil, fmt.Errorf("parent %s of %s not yet written (revs must be topologically sorted)", parents[0], rev)
		}
		p1 = p
	}
	p2 := nullID
	if len(parents) > 1 {
		p, ok := gitToNode[parents[1]]
		if !ok {
			return nil, nil, nil, fmt.Errorf("parent %s of %s not yet written (revs must be topologically sorted)", parents[1], rev)
		}
		p2 = p
	}

	node = hashRevision(changelog, p1, p2)
	rd := revData(changelog, lastChangelogLen)

	payload := make([]byte, 0, len(node)*2+len(p1)+len(p2)+len(rd))
	payload = append(payload, node...)
	payload = append(payload, p1...)
	payload = append(payload, p2...)
	payload = append(payload, node...)
	payload = append(payload, rd...)

	return chunk(payload), changelog, node, nil
}
