//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type sysfsWatcher struct {
	path    string
	recheck time.Duration
	logger  *slog.Logger
}

func (w *sysfsWatcher) Run(ctx context.Context, edges chan<- struct{}) error {
	return errors.New("sysfs interrupt mode requires linux")
}
