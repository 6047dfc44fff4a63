//go:build !linux

package parquetio

import "os"

func dropCache(*os.File) {}
