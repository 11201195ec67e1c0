package worker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nixpig/pend/internal/store"
)

const (
	// readChunkSize aligns with typical pipe buffer sizes.
	readChunkSize = 8192

	// mergeQueueDepth bounds the fan-in channel so a stalled disk
	// backpressures the readers instead of buffering without limit.
	mergeQueueDepth = 64
)

// merger fans chunks from the child's two output streams into a single
// merged log. Each stream is drained by its own goroutine so the child
// never blocks on a full pipe; chunks are forwarded in arrival order over
// one channel to the single goroutine allowed to write the log file, which
// gives a total order without locking the file from two writers.
type merger struct {
	logPath string
	maxSize int64

	ch      chan []byte
	readers sync.WaitGroup

	writerDone chan struct{}
	writerErr  error

	captureMu  sync.Mutex
	captureErr error
}

// newMerger opens the merged log and starts the writer goroutine. With
// appendMode the previous attempt's log is kept and a retry separator is
// written first; otherwise the log is truncated.
func newMerger(logPath string, maxSize int64, appendMode bool) (*merger, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	logFile, err := os.OpenFile(logPath, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open merged log: %w", err)
	}

	if appendMode {
		if _, err := logFile.WriteString("\n-- retry --\n\n"); err != nil {
			logFile.Close()

			return nil, err
		}
	}

	m := &merger{
		logPath:    logPath,
		maxSize:    maxSize,
		ch:         make(chan []byte, mergeQueueDepth),
		writerDone: make(chan struct{}),
	}

	go m.writeLoop(logFile)

	return m, nil
}

// drain continuously reads one stream, appending raw bytes to dest and
// forwarding a copy to the log writer. Runs until the stream hits EOF,
// which happens when the child exits or is killed. A failed capture write
// is recorded and dest is abandoned; the stream keeps draining so the
// child never blocks on a full pipe and the merged log stays complete.
func (m *merger) drain(src io.Reader, dest *os.File) {
	m.readers.Add(1)

	go func() {
		defer m.readers.Done()
		defer dest.Close()

		chunk := make([]byte, readChunkSize)

		var destErr error

		for {
			n, err := src.Read(chunk)
			if n > 0 {
				if destErr == nil {
					if _, destErr = dest.Write(chunk[:n]); destErr != nil {
						m.recordCaptureErr(destErr)
					}
				}

				m.ch <- append([]byte(nil), chunk[:n]...)
			}

			if err != nil {
				return
			}
		}
	}()
}

func (m *merger) recordCaptureErr(err error) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()

	if m.captureErr == nil {
		m.captureErr = err
	}
}

// wait blocks until both streams are fully drained and every forwarded
// chunk has been flushed to the merged log, then reports any write error.
// The completion contract depends on this: the exit marker is only written
// after wait returns.
func (m *merger) wait() error {
	m.readers.Wait()
	close(m.ch)
	<-m.writerDone

	if m.writerErr != nil {
		return m.writerErr
	}

	return m.captureErr
}

func (m *merger) writeLoop(logFile *os.File) {
	defer close(m.writerDone)

	currentLen := store.FileLen(m.logPath)

	for chunk := range m.ch {
		// Rotation happens between records, never mid-write, and never
		// drops data.
		if m.maxSize > 0 && currentLen+int64(len(chunk)) > m.maxSize {
			logFile.Close()

			if err := shiftBackups(m.logPath); err != nil {
				m.writerErr = err

				drainRemaining(m.ch)

				return
			}

			logFile, m.writerErr = os.OpenFile(
				m.logPath,
				os.O_CREATE|os.O_WRONLY|os.O_TRUNC,
				0o644,
			)
			if m.writerErr != nil {
				drainRemaining(m.ch)

				return
			}

			currentLen = 0
		}

		if _, err := logFile.Write(chunk); err != nil {
			m.writerErr = err
			logFile.Close()

			drainRemaining(m.ch)

			return
		}

		currentLen += int64(len(chunk))
	}

	m.writerErr = logFile.Close()
}

// shiftBackups renames job.log to job.log.1 after pushing any existing
// numbered backups one position down, so the newest rotation is always .1.
func shiftBackups(logPath string) error {
	highest := 0

	for _, backup := range backupsOf(logPath) {
		n, err := strconv.Atoi(strings.TrimPrefix(backup, logPath+"."))
		if err == nil && n > highest {
			highest = n
		}
	}

	for n := highest; n >= 1; n-- {
		from := fmt.Sprintf("%s.%d", logPath, n)
		to := fmt.Sprintf("%s.%d", logPath, n+1)

		if err := os.Rename(from, to); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if err := os.Rename(logPath, logPath+".1"); err != nil {
		return err
	}

	return nil
}

func backupsOf(logPath string) []string {
	entries, _ := os.ReadDir(filepath.Dir(logPath))

	var backups []string

	prefix := filepath.Base(logPath) + "."

	for _, entry := range entries {
		rest, found := strings.CutPrefix(entry.Name(), prefix)
		if !found {
			continue
		}

		if _, err := strconv.Atoi(rest); err == nil {
			backups = append(backups, logPath+"."+rest)
		}
	}

	return backups
}

// drainRemaining keeps the channel moving after a write error so the
// reader goroutines can finish instead of blocking on a full queue.
func drainRemaining(ch <-chan []byte) {
	for range ch {
	}
}
