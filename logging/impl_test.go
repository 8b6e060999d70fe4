package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestConsoleFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("estimator")
	logger.AddAppender(NewWriterAppender(&buf))

	logger.Infow("consensus improved", "inliers", 80, "budget", 12)
	line := strings.TrimSuffix(buf.String(), "\n")
	parts := strings.Split(line, "\t")
	test.That(t, parts, test.ShouldHaveLength, 6)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "estimator")
	test.That(t, parts[3], test.ShouldContainSubstring, "impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "consensus improved")
	test.That(t, parts[5], test.ShouldEqual, `{"inliers":80,"budget":12}`)
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("")
	logger.AddAppender(NewWriterAppender(&buf))
	logger.SetLevel(WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warnf("kept %d", 1)
	test.That(t, buf.String(), test.ShouldContainSubstring, "kept 1")

	level, err := LevelFromString("WARNING")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	encoded, err := ERROR.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(encoded), test.ShouldEqual, `"error"`)
	var decoded Level
	test.That(t, decoded.UnmarshalJSON(encoded), test.ShouldBeNil)
	test.That(t, decoded, test.ShouldEqual, ERROR)
}

func TestSubloggerAndObserver(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("pnp").Sublogger("ransac")
	sub.Debugw("trial", "iteration", 3)
	sub.Errorw("unpaired", "key")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	entry := logs.FilterMessage("trial").All()[0]
	test.That(t, entry.LoggerName, test.ShouldEqual, "pnp.ransac")
	test.That(t, entry.ContextMap()["iteration"], test.ShouldEqual, int64(3))

	unpaired := logs.FilterMessage("unpaired").All()[0]
	test.That(t, unpaired.ContextMap()["key"], test.ShouldNotBeNil)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pnp.log")
	appender := NewFileAppender(path, 1)
	logger := NewBlankLogger("pnp")
	logger.AddAppender(appender)
	logger.Infow("wrote result", "path", "result.json")
	test.That(t, appender.Close(), test.ShouldBeNil)

	//nolint:gosec
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "wrote result")
	test.That(t, string(data), test.ShouldContainSubstring, `{"path":"result.json"}`)
}

func TestReplaceGlobal(t *testing.T) {
	defaultLogger := Global()
	test.That(t, defaultLogger.GetLevel(), test.ShouldEqual, INFO)
	defer ReplaceGlobal(defaultLogger)

	logger, logs := NewObservedTestLogger(t)
	ReplaceGlobal(logger)
	test.That(t, Global(), test.ShouldEqual, logger)
	Global().Infow("installed")
	test.That(t, logs.FilterMessage("installed").Len(), test.ShouldEqual, 1)
}
