package publisher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odom.jsonl")
	sink := NewFileSink(FileConfig{Path: path})
	defer func() {
		test.That(t, sink.Close(), test.ShouldBeNil)
	}()

	ctx := context.Background()
	test.That(t, sink.Write(ctx, NewTwistMessage(time.Unix(1, 0).UTC(), "base_link", 1, 0)), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, `"topic":"cmd_vel_out"`)

	test.That(t, sink.Rotate(), test.ShouldBeNil)
	test.That(t, sink.Write(ctx, NewTwistMessage(time.Unix(2, 0).UTC(), "base_link", 2, 0)), test.ShouldBeNil)

	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 2)

	contents, err = os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(strings.Split(strings.TrimSpace(string(contents)), "\n")), test.ShouldEqual, 1)
}
