// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileLock is an exclusive fcntl write lock on a lock file. It
// serialises dataset writers across processes; the blocking acquire
// uses F_SETLKW, so a second writer waits instead of failing.
type FileLock struct {
	path string
	file *os.File
}

// AcquireLock blocks until the exclusive lock on path is held.
func AcquireLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	ft := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: 0,
		Start:  0,
		Len:    0,
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLKW, &ft); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &FileLock{path: path, file: f}, nil
}

// Release drops the lock and closes the lock file.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}
	ft := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  0,
		Len:    0,
	}
	if err := unix.FcntlFlock(l.file.Fd(), unix.F_SETLK, &ft); err != nil {
		l.file.Close()
		l.file = nil
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// File exposes the underlying descriptor for read-modify-write
// sequences done under the lock, like directory segment sequence
// files.
func (l *FileLock) File() *os.File { return l.file }
