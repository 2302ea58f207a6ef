package main

import (
	"bufio"
	"io"
	"strings"
)

// #region stdin-keys
// stdinKeys turns lines typed on r into key presses. Reading happens on its own
// goroutine; Pressed never blocks.
type stdinKeys struct {
	ch chan string
}

func newStdinKeys(r io.Reader) *stdinKeys {
	k := &stdinKeys{ch: make(chan string, 16)}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			key := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if key == "" {
				continue
			}
			select {
			case k.ch <- key:
			default:
			}
		}
	}()
	return k
}

// Pressed drains every key typed since the last call.
func (k *stdinKeys) Pressed() []string {
	var keys []string
	for {
		select {
		case key := <-k.ch:
			keys = append(keys, key)
		default:
			return keys
		}
	}
}

// #endregion stdin-keys
