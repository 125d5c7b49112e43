package logging

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Interceptor implements io.Writer, stamping each line written to it with a
// sequence number and timestamp before forwarding to target. The file
// handler built on top of it is configured to drop its own time attribute,
// since this is the only timestamp that ends up in the log file.
type Interceptor struct {
	target          io.Writer
	sequenceNumber  *atomic.Uint64
	interceptBuf    *bytes.Buffer
	interceptReader *bufio.Reader
}

// NewInterceptor builds an Interceptor writing formatted lines to target.
func NewInterceptor(target io.Writer) *Interceptor {
	buf := &bytes.Buffer{}
	return &Interceptor{
		target:          target,
		sequenceNumber:  &atomic.Uint64{},
		interceptBuf:    buf,
		interceptReader: bufio.NewReader(buf),
	}
}

func (i *Interceptor) writeFormattedLine(line []byte) (int, error) {
	lineNum := i.sequenceNumber.Add(1)
	total := 0

	n, err := io.WriteString(i.target, slog.Uint64("line", lineNum).String()+" ")
	total += n
	if err != nil {
		return total, err
	}

	n, err = io.WriteString(i.target, slog.String("time", time.Now().Format(time.RFC3339)).String()+" ")
	total += n
	if err != nil {
		return total, err
	}

	n, err = i.target.Write(line)
	total += n
	return total, err
}

// Write implements io.Writer, buffering input and formatting each complete
// line as it becomes available.
func (i *Interceptor) Write(p []byte) (int, error) {
	if _, err := i.interceptBuf.Write(p); err != nil {
		return 0, err
	}

	total := 0
	for {
		idx := bytes.IndexByte(i.interceptBuf.Bytes(), '\n')
		if idx < 0 {
			return total, nil
		}
		n, err := i.writeFormattedLine(i.interceptBuf.Next(idx + 1))
		total += n
		if err != nil {
			return total, err
		}
	}
}

// Close flushes any remaining buffered partial line.
func (i *Interceptor) Close() error {
	remaining, err := io.ReadAll(i.interceptReader)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		_, err = i.writeFormattedLine(remaining)
	}
	return err
}
