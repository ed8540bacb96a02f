// Package termio serializes terminal output through background writers so
// progress redraws and log lines never block the transfer loop.
package termio

import (
	"io"
	"os"
	"sync"
)

type chunk struct {
	buf []byte
	ack chan struct{}
}

type writer struct {
	file *os.File
	ch   chan chunk
}

func (w *writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.ch <- chunk{buf: append([]byte(nil), p...)}
	return len(p), nil
}

func (w *writer) flush() {
	ack := make(chan struct{})
	w.ch <- chunk{ack: ack}
	<-ack
}

func (w *writer) run() {
	for c := range w.ch {
		if c.ack != nil {
			close(c.ack)
			continue
		}
		_, _ = w.file.Write(c.buf)
	}
}

type manager struct {
	once   sync.Once
	stdout *writer
	stderr *writer
}

var global manager

func Init() {
	global.once.Do(func() {
		global.stdout = newWriter(os.Stdout)
		global.stderr = newWriter(os.Stderr)
	})
}

func newWriter(f *os.File) *writer {
	w := &writer{
		file: f,
		ch:   make(chan chunk, 1024),
	}
	go w.run()
	return w
}

func Stdout() io.Writer {
	Init()
	return global.stdout
}

func Stderr() io.Writer {
	Init()
	return global.stderr
}

func StdoutFile() *os.File {
	Init()
	return global.stdout.file
}

func StderrFile() *os.File {
	Init()
	return global.stderr.file
}

// Flush blocks until everything written so far has reached the terminal.
// Call it before exiting.
func Flush() {
	Init()
	global.stdout.flush()
	global.stderr.flush()
}
