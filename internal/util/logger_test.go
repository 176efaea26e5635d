package sihd_util

import (
	"testing"

	"github.com/sirupsen/logrus"

	sihd_testutils "github.com/mdufaud/sihd-sub000/testutils"
)

func testLogAddModuleDirPathPrefix(t *testing.T, mdpc *ModuleDirPathCache, prefix string, expectedPrefixList []string) {
	mdpc.addPrefix(prefix)
	if len(mdpc.prefixList) != len(expectedPrefixList) {
		t.Errorf("len(prefixList): want %d, got %d", len(expectedPrefixList), len(mdpc.prefixList))
	}
	for i, expected := range expectedPrefixList {
		if mdpc.prefixList[i] != expected {
			t.Errorf("prefixList[%d]: want %#v, got %#v", i, expected, mdpc.prefixList[i])
		}
	}
}

func testLogStripModuleDirPathPrefix(t *testing.T, mdpc *ModuleDirPathCache, filePath string, expected string) {
	result := mdpc.stripPrefix(filePath)
	if result != expected {
		t.Errorf("%#v: stripPrefix(%#v): want %#v, got %#v", mdpc, filePath, expected, result)
	}
}

func TestLogAddModuleDirPathPrefix(t *testing.T) {
	mdpc := &ModuleDirPathCache{}

	for _, tc := range []struct {
		prefix             string
		expectedPrefixList []string
	}{
		{"a/b", []string{"a/b"}},
		{"a/b/c", []string{"a/b/c", "a/b"}},
		{"a", []string{"a/b/c", "a/b", "a"}},
		{"a", []string{"a/b/c", "a/b", "a"}},
		{"a/b/c/d", []string{"a/b/c/d", "a/b/c", "a/b", "a"}},
		{"a/b", []string{"a/b/c/d", "a/b/c", "a/b", "a"}},
		{"b/b", []string{"a/b/c/d", "a/b/c", "b/b", "a/b", "a"}},
	} {
		testLogAddModuleDirPathPrefix(t, mdpc, tc.prefix, tc.expectedPrefixList)
	}
}

func TestStripPrefixMatch(t *testing.T) {
	mdpc := &ModuleDirPathCache{
		prefixList: []string{"a/b/c/", "c/d/", "e/"},
	}

	for _, tc := range []struct {
		filePath string
		expected string
	}{
		{"a/b/c/d/e/f", "d/e/f"},
		{"c/d/e/f/g", "e/f/g"},
		{"e/f/g/h", "f/g/h"},
	} {
		testLogStripModuleDirPathPrefix(t, mdpc, tc.filePath, tc.expected)
	}
}

func TestStripPrefixNoMatch(t *testing.T) {
	for _, tc := range []struct {
		keepNDirs int
		filePath  string
		expected  string
	}{
		{2, "a/b/c", "a/b/c"},
		{3, "x/y/c/d", "x/y/c/d"},
		{1, "x/y/z/e", "z/e"},
	} {
		testLogStripModuleDirPathPrefix(t, &ModuleDirPathCache{keepNDirs: tc.keepNDirs}, tc.filePath, tc.expected)
	}
}

// testLogConfig drives SetLogger with an in-memory LoggerConfig and exercises
// every level through a couple of component loggers; there is no fixture file
// involved, the config is the test case itself.
func testLogConfig(t *testing.T, logCfg *LoggerConfig) {
	tlc := sihd_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	err := SetLogger(logCfg)
	if err != nil {
		t.Fatal(err)
	}

	log1 := NewCompLogger("Comp1")
	log2 := NewCompLogger("Comp2")

	log1.Debug("debug test")
	log1.Info("info test")
	log1.Warn("warn test")
	log1.Error("error test")

	log2.Debug("debug test")
	log2.Info("info test")
	log2.Warn("warn test")
	log2.Error("error test")

	if !tlc.Collecting() {
		return // go test -v: output went straight to the real sink, nothing to inspect
	}
	level, err := logrus.ParseLevel(logCfg.Level)
	if err != nil {
		t.Fatal(err)
	}
	if level >= logrus.DebugLevel && !tlc.Contains("debug test") {
		t.Errorf("level %s: expected a collected debug record, got none in %v", logCfg.Level, tlc.Lines())
	}
	if level < logrus.DebugLevel && tlc.Contains("debug test") {
		t.Errorf("level %s: expected debug records to be filtered out, got one in %v", logCfg.Level, tlc.Lines())
	}
	if !tlc.Contains("error test") {
		t.Errorf("level %s: expected a collected error record, got none in %v", logCfg.Level, tlc.Lines())
	}
}

func TestLogConfig(t *testing.T) {
	for name, logCfg := range map[string]*LoggerConfig{
		"json-info": {
			UseJson:             true,
			Level:               "info",
			DisableSrcFile:      false,
			LogFileMaxSize:      LOGGER_CONFIG_LOG_FILE_MAX_SIZE_DEFAULT,
			LogFileMaxBackupNum: LOGGER_CONFIG_LOG_FILE_MAX_BACKUP_NUM_DEFAULT,
		},
		"text-debug": {
			UseJson:             false,
			Level:               "debug",
			DisableSrcFile:      false,
			LogFileMaxSize:      LOGGER_CONFIG_LOG_FILE_MAX_SIZE_DEFAULT,
			LogFileMaxBackupNum: LOGGER_CONFIG_LOG_FILE_MAX_BACKUP_NUM_DEFAULT,
		},
		"text-no-src-file": {
			UseJson:             false,
			Level:               "warn",
			DisableSrcFile:      true,
			LogFileMaxSize:      LOGGER_CONFIG_LOG_FILE_MAX_SIZE_DEFAULT,
			LogFileMaxBackupNum: LOGGER_CONFIG_LOG_FILE_MAX_BACKUP_NUM_DEFAULT,
		},
	} {
		t.Run(name, func(t *testing.T) { testLogConfig(t, logCfg) })
	}
}

// TestLogFileMaxSizeMB exercises the human-readable byte size parsing that
// feeds lumberjack.Logger.MaxSize.
func TestLogFileMaxSizeMB(t *testing.T) {
	for _, tc := range []struct {
		spec    string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"10MiB", 10, false},
		{"1GiB", 1024, false},
		{"not-a-size", 0, true},
	} {
		got, err := logFileMaxSizeMB(tc.spec)
		if tc.wantErr {
			if err == nil {
				t.Errorf("logFileMaxSizeMB(%q): expected error, got nil", tc.spec)
			}
			continue
		}
		if err != nil {
			t.Fatalf("logFileMaxSizeMB(%q): unexpected error: %v", tc.spec, err)
		}
		if got != tc.want {
			t.Errorf("logFileMaxSizeMB(%q): want %d, got %d", tc.spec, tc.want, got)
		}
	}
}

// TestComponentLevelOverride verifies that a component named in
// LoggerConfig.ComponentLevels is filtered independently of RootLogger's
// own level: a component set to "error" stays silent at "warn" even while
// the global level is "debug", and reverts once the override is cleared.
func TestComponentLevelOverride(t *testing.T) {
	tlc := sihd_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	quietName := "quiet-comp"
	cfg := DefaultLoggerConfig()
	cfg.Level = "debug"
	cfg.ComponentLevels = map[string]string{quietName: "error"}
	if err := SetLogger(cfg); err != nil {
		t.Fatal(err)
	}
	defer setComponentLevelOverrides(nil)

	quiet := NewCompLogger(quietName)
	loud := NewCompLogger("loud-comp")

	formatter, ok := RootLogger.Formatter.(*levelFilteringFormatter)
	if !ok {
		t.Fatalf("RootLogger.Formatter is %T, want *levelFilteringFormatter", RootLogger.Formatter)
	}

	quietEntry := quiet.WithField("probe", "warn")
	quietEntry.Level = logrus.WarnLevel
	if buf, _ := formatter.Format(quietEntry); len(buf) != 0 {
		t.Errorf("expected %q's warn record to be suppressed, got %q", quietName, buf)
	}

	loudEntry := loud.WithField("probe", "warn")
	loudEntry.Level = logrus.WarnLevel
	if buf, _ := formatter.Format(loudEntry); len(buf) == 0 {
		t.Errorf("expected %q's warn record to pass through, got nothing", "loud-comp")
	}

	if err := setComponentLevelOverrides(nil); err != nil {
		t.Fatal(err)
	}
	if buf, _ := formatter.Format(quietEntry); len(buf) == 0 {
		t.Errorf("expected %q's warn record to pass through once overrides are cleared", quietName)
	}
}
