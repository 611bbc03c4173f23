//go:build !linux

package xdb

import "os"

func fadviseRandom(f *os.File) {}
