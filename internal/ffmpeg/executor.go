package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// stderrTailLines bounds the stderr kept for error messages.
const stderrTailLines = 20

// infoBuffer is the showinfo channel capacity. ffmpeg logs a frame's info
// before writing the frame, so the reader never falls far behind.
const infoBuffer = 256

// Pipe is a running ffmpeg decode.
type Pipe struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	info   chan FrameInfo
	done   chan struct{}
	wg     sync.WaitGroup

	mu   sync.Mutex
	tail []string

	eof       bool
	closeOnce sync.Once
	closeErr  error
}

// Start launches args (as built by DecodeArgs). When withInfo is set,
// parsed showinfo lines are delivered on Info.
func Start(ctx context.Context, args []string, withInfo bool) (*Pipe, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &Pipe{
		cmd:    cmd,
		stdout: stdout,
		done:   make(chan struct{}),
	}
	if withInfo {
		p.info = make(chan FrameInfo, infoBuffer)
	}
	p.wg.Add(1)
	go p.drain(stderr)
	return p, nil
}

func (p *Pipe) drain(stderr io.Reader) {
	defer p.wg.Done()
	if p.info != nil {
		defer close(p.info)
	}
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if p.info != nil {
			if fi, ok := ParseShowInfo(line); ok {
				select {
				case p.info <- fi:
				case <-p.done:
				}
				continue
			}
			if strings.Contains(line, "Parsed_showinfo") {
				continue
			}
		}
		p.mu.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[len(p.tail)-stderrTailLines:]
		}
		p.mu.Unlock()
	}
}

// Info returns the showinfo channel, or nil when Start was called without
// withInfo. It is closed when ffmpeg's stderr closes.
func (p *Pipe) Info() <-chan FrameInfo { return p.info }

// ReadFrame fills buf with the next frame. It returns io.EOF at a clean end
// of stream and io.ErrUnexpectedEOF when the last frame is truncated.
func (p *Pipe) ReadFrame(buf []byte) error {
	_, err := io.ReadFull(p.stdout, buf)
	if err == io.EOF {
		p.eof = true
	}
	return err
}

// Stderr returns the retained tail of ffmpeg's non-showinfo output.
func (p *Pipe) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.tail, "\n")
}

// Close stops ffmpeg if it is still running and waits for it. When the
// caller read to the end of the stream, a non-zero exit is returned with the
// stderr tail; a pipe closed early is killed and its exit status ignored.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		if !p.eof {
			_ = p.cmd.Process.Kill()
		}
		p.stdout.Close()
		p.wg.Wait()
		err := p.cmd.Wait()
		if err == nil || !p.eof {
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.closeErr = fmt.Errorf("ffmpeg: %w: %s", err, p.Stderr())
			return
		}
		p.closeErr = err
	})
	return p.closeErr
}
