//go:build linux

package keystroke

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// LinuxCapture reads key events from evdev devices.
type LinuxCapture struct {
	Base
	opts   Options
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func newPlatformCapture(opts Options) Capture {
	return &LinuxCapture{
		opts:   opts,
		logger: slog.Default().With("component", "keystroke"),
	}
}

// Available checks if we can read input devices.
func (l *LinuxCapture) Available() (bool, string) {
	devices, err := l.devices()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}

	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}

	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

func (l *LinuxCapture) devices() ([]string, error) {
	if len(l.opts.Devices) > 0 {
		return l.opts.Devices, nil
	}
	return findKeyboardDevices()
}

// findKeyboardDevices finds /dev/input devices that are keyboards.
func findKeyboardDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var devices []string
	add := func(dev string) {
		if resolved, err := filepath.EvalSymlinks(dev); err == nil {
			dev = resolved
		}
		if !seen[dev] {
			seen[dev] = true
			devices = append(devices, dev)
		}
	}

	scanner := bufio.NewScanner(f)
	var handler string
	keyboard := false
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "H: Handlers=") {
			fields := strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
			for _, part := range fields {
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
				if part == "kbd" {
					keyboard = true
				}
			}
		}

		if line == "" {
			if keyboard && handler != "" {
				add(handler)
			}
			handler = ""
			keyboard = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	matches, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	for _, m := range matches {
		add(m)
	}

	return devices, nil
}

// Start opens every readable keyboard device and begins delivering events.
func (l *LinuxCapture) Start(ctx context.Context, h Handler) error {
	if l.IsRunning() {
		return ErrAlreadyRunning
	}

	devices, err := l.devices()
	if err != nil || len(devices) == 0 {
		return ErrNotAvailable
	}

	var files []*os.File
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			l.logger.Debug("skipping input device", "device", dev, "error", err)
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return ErrPermissionDenied
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.SetRunning(true, h)
	l.logger.Info("keyboard capture started", "devices", len(files))

	go l.readLoop(ctx, files)
	return nil
}

// Size of struct input_event on 64-bit kernels.
const eventSize = 24

const (
	evKey        = 1
	pollInterval = 100 // ms
)

func (l *LinuxCapture) readLoop(ctx context.Context, files []*os.File) {
	defer close(l.done)
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	t := &translator{layout: l.opts.Layout}
	fds := make([]unix.PollFd, len(files))
	for i, f := range files {
		fds[i] = unix.PollFd{Fd: int32(f.Fd()), Events: unix.POLLIN}
	}
	buf := make([]byte, eventSize*64)

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := unix.Poll(fds, pollInterval)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			l.logger.Error("poll input devices", "error", err)
			return
		}
		if n == 0 {
			continue
		}

		for i := range fds {
			if fds[i].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
				l.logger.Warn("input device went away", "device", files[i].Name())
				fds[i].Fd = -1
				continue
			}
			if fds[i].Revents&unix.POLLIN == 0 {
				continue
			}
			read, err := files[i].Read(buf)
			if err != nil {
				continue
			}
			for off := 0; off+eventSize <= read; off += eventSize {
				ev := buf[off : off+eventSize]
				typ := binary.LittleEndian.Uint16(ev[16:18])
				if typ != evKey {
					continue
				}
				code := binary.LittleEndian.Uint16(ev[18:20])
				value := int32(binary.LittleEndian.Uint32(ev[20:24]))
				t.handle(&l.Base, code, value)
			}
		}
	}
}

// Stop stops capture.
func (l *LinuxCapture) Stop() error {
	if !l.IsRunning() {
		return nil
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
	l.SetRunning(false, Handler{})
	l.logger.Info("keyboard capture stopped")
	return nil
}
