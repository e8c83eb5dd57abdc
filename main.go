package main

import (
	"errors"
	"os"

	isync "github.com/tonimelisma/flipper-sync/internal/sync"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, isync.ErrSyncCanceled) || errors.Is(err, errInterrupted) {
			os.Exit(exitInterrupted)
		}

		exitOnError(err)
	}
}
