package main

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
	"gopkg.in/natefinch/lumberjack.v2"
)

const LOG_FILE = "rankclaim.log"

var logFile *lumberjack.Logger

func setupLogging(logDebug, logTrace bool, logDir string) {

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:  true,
		DisableSorting: true,
	})

	switch {
	case logTrace:
		log.SetLevel(log.TraceLevel)
	case logDebug:
		log.SetLevel(log.DebugLevel)
	}

	if logDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("Failed to determine working directory: %s", err)
		}
		logDir = cwd
	}

	// Rotated by size; old files are compressed
	logFile = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LOG_FILE),
		MaxSize:    20,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	// Write everything to log file too
	log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	log.AddHook(&writer.Hook{
		Writer: logFile,
		LogLevels: []log.Level{
			log.PanicLevel,
			log.FatalLevel,
			log.ErrorLevel,
			log.WarnLevel,
			log.InfoLevel,
			log.DebugLevel,
			log.TraceLevel,
		},
	})
}

func closeLogging() {
	if logFile == nil {
		return
	}
	if err := logFile.Close(); err != nil {
		log.WithError(err).Error("Unable to close log file")
	}
	logFile = nil
}
