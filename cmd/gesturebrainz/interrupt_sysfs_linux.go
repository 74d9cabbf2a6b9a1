//go:build linux

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// sysfsWatcher waits on a legacy sysfs GPIO value file. The pin's edge file
// must be set to "falling" (or "both") beforehand; the kernel then signals
// EPOLLPRI on every configured edge.
type sysfsWatcher struct {
	path    string
	recheck time.Duration
	logger  *slog.Logger
}

func (w *sysfsWatcher) Run(ctx context.Context, edges chan<- struct{}) error {
	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}
	defer f.Close()

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fd := int(f.Fd())
	event := unix.EpollEvent{
		Events: unix.EPOLLPRI | unix.EPOLLERR,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("epoll_ctl_add %s: %w", w.path, err)
	}

	// The first read arms the notification.
	if _, err := readLevel(f); err != nil {
		return err
	}
	w.logger.Info("watching interrupt line", "mode", interruptModeSysfs, "path", w.path)

	epollEvents := make([]unix.EpollEvent, 1)
	timeoutMS := int(w.recheck / time.Millisecond)
	for {
		if ctx.Err() != nil {
			return nil
		}
		// Bounded wait so cancellation is observed.
		n, err := unix.EpollWait(epfd, epollEvents, timeoutMS)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		low, err := readLevel(f)
		if err != nil {
			return err
		}
		if n > 0 || low {
			notifyEdge(edges)
		}
	}
}

// readLevel rewinds f and reports whether the value file reads "0".
func readLevel(f *os.File) (bool, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("seek %s: %w", f.Name(), err)
	}
	var buf [8]byte
	n, err := f.Read(buf[:])
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return bytes.Equal(bytes.TrimSpace(buf[:n]), []byte("0")), nil
}
