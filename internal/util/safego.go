package util

import (
	"runtime/debug"
	"sync"

	"github.com/ministake/ministake/internal/logging"
)

// SafeGo wraps a goroutine function with panic recovery and logging.
func SafeGo(fn func()) {
	SafeGoWithName("anonymous", fn)
}

// SafeGoWithName wraps a goroutine function with panic recovery and logging,
// including a descriptive name for the goroutine for better debugging.
//
//	util.SafeGoWithName("readiness-scheduler", func() {
//	    // goroutine code here
//	})
func SafeGoWithName(name string, fn func()) {
	go run(name, fn)
}

// SafeGoGroup starts fn in a recovered goroutine tracked by wg, so callers
// can wait for background loops to exit on shutdown.
func SafeGoGroup(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(name, fn)
	}()
}

func run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("goroutine panic recovered",
				"goroutine", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
