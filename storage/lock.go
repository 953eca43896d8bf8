package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrLocked means another live run holds the table lock.
var ErrLocked = errors.New("table is locked by another run")

// Lock is an O_EXCL lock file next to a table. A holder refreshes its mtime
// while alive; a lock older than its TTL is treated as abandoned.
type Lock struct {
	path string
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// AcquireLock creates <tablePath>.lock and starts its heartbeat.
func AcquireLock(tablePath string, ttl time.Duration) (*Lock, error) {
	lockPath := tablePath + ".lock"
	if abs, err := filepath.Abs(lockPath); err == nil {
		lockPath = abs
	}

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, `{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix())
			f.Close()
			l := &Lock{path: lockPath, stop: make(chan struct{})}
			l.wg.Add(1)
			go l.heartbeat(ttl / 3)
			return l, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}

		fi, err := os.Stat(lockPath)
		if err != nil {
			continue
		}
		if age := time.Since(fi.ModTime()); age >= ttl {
			log.Printf("Lock: removing stale lock %s (age %v)", lockPath, age.Round(time.Second))
			os.Remove(lockPath)
			continue
		}
		return nil, fmt.Errorf("%s: %w", lockPath, ErrLocked)
	}
	return nil, fmt.Errorf("%s: %w", lockPath, ErrLocked)
}

func (l *Lock) Path() string {
	return l.path
}

// Release stops the heartbeat and removes the lock file. Safe to call twice.
func (l *Lock) Release() {
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		os.Remove(l.path)
	})
}

func (l *Lock) heartbeat(every time.Duration) {
	defer l.wg.Done()
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			now := time.Now()
			os.Chtimes(l.path, now, now)
		}
	}
}
